package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"github.com/uma-arai/casa25-portal/internal/common/utils"
	"github.com/uma-arai/casa25-portal/internal/metrics"
	"github.com/uma-arai/casa25-portal/internal/model"
)

// リモートストアのPOSTアクションです
const (
	ActionSaveReservation = "save_reservation"
	ActionAddFeedback     = "add_feedback"
)

// FeedbackType は add_feedback の種別です
type FeedbackType string

const (
	FeedbackTypeIssue    FeedbackType = "issue"
	FeedbackTypeFeedback FeedbackType = "feedback"
)

// FeedbackEntry はリモートストアに追記されるログです
type FeedbackEntry struct {
	Type      FeedbackType `json:"type"`
	Message   string       `json:"message"`
	GuestName string       `json:"guestName"`
}

// RemoteStore はHTTP越しのキーバリューストアです
// 失敗は全て model.ErrNetworkUnavailable をラップして返します
type RemoteStore interface {
	FetchState(ctx context.Context) ([]byte, error)
	FetchByPIN(ctx context.Context, pin string) ([]byte, error)
	SaveReservation(ctx context.Context, payload []byte) error
	AddFeedback(ctx context.Context, entry FeedbackEntry) error
}

// RemoteStoreImpl はRemoteStoreのHTTP実装です
type RemoteStoreImpl struct {
	endpoint   string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
	retryWait  time.Duration
}

// RemoteOption はRemoteStoreImplの設定を変更します
type RemoteOption func(*RemoteStoreImpl)

// WithRetry はGETの再試行回数と初回の待ち時間を設定します
func WithRetry(maxRetries uint64, wait time.Duration) RemoteOption {
	return func(r *RemoteStoreImpl) {
		r.maxRetries = maxRetries
		r.retryWait = wait
	}
}

// WithHTTPClient は使用するHTTPクライアントを差し替えます
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(r *RemoteStoreImpl) {
		r.client = client
	}
}

// NewRemoteStore は新しいRemoteStoreImplを作成します
// endpointが空の場合は常にオフラインとして振る舞います
func NewRemoteStore(endpoint string, timeout time.Duration, opts ...RemoteOption) *RemoteStoreImpl {
	r := &RemoteStoreImpl{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
		maxRetries: 2,
		retryWait:  500 * time.Millisecond,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-store",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchState は現在の予約JSONを取得します
// 空マーカーの判定は呼び出し側で model.IsEmptyMarker を使って行います
func (r *RemoteStoreImpl) FetchState(ctx context.Context) ([]byte, error) {
	ctx, seg := utils.BeginSubsegment(ctx, "RemoteStore.FetchState")

	var body []byte
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.retryWait
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, r.maxRetries), ctx)

	err := backoff.Retry(func() error {
		var err error
		body, err = r.get(ctx, r.endpoint)
		return err
	}, policy)
	utils.CloseSegment(seg, err)
	if err != nil {
		metrics.RemoteFailures.WithLabelValues("fetch_state").Inc()
		return nil, err
	}
	return body, nil
}

// FetchByPIN はPINに一致する予約JSONを取得します
// 一致しない場合の形式はリモート次第のため、呼び出し側で WellFormed を確認します
func (r *RemoteStoreImpl) FetchByPIN(ctx context.Context, pin string) ([]byte, error) {
	ctx, seg := utils.BeginSubsegment(ctx, "RemoteStore.FetchByPIN")

	u, err := url.Parse(r.endpoint)
	if err != nil || r.endpoint == "" {
		err = fmt.Errorf("invalid remote endpoint %q: %w", r.endpoint, model.ErrNetworkUnavailable)
		utils.CloseSegment(seg, err)
		return nil, err
	}
	q := u.Query()
	q.Set("pin", pin)
	u.RawQuery = q.Encode()

	body, err := r.get(ctx, u.String())
	utils.CloseSegment(seg, err)
	if err != nil {
		metrics.RemoteFailures.WithLabelValues("fetch_by_pin").Inc()
		return nil, err
	}
	return body, nil
}

// SaveReservation は予約全体を save_reservation として送信します
func (r *RemoteStoreImpl) SaveReservation(ctx context.Context, payload []byte) error {
	envelope := struct {
		Action  string          `json:"action"`
		Payload json.RawMessage `json:"payload"`
	}{
		Action:  ActionSaveReservation,
		Payload: json.RawMessage(payload),
	}
	if err := r.post(ctx, "RemoteStore.SaveReservation", envelope); err != nil {
		metrics.RemoteFailures.WithLabelValues(ActionSaveReservation).Inc()
		return err
	}
	return nil
}

// AddFeedback は問題報告や感想を add_feedback として送信します
func (r *RemoteStoreImpl) AddFeedback(ctx context.Context, entry FeedbackEntry) error {
	envelope := struct {
		Action string `json:"action"`
		FeedbackEntry
	}{
		Action:        ActionAddFeedback,
		FeedbackEntry: entry,
	}
	if err := r.post(ctx, "RemoteStore.AddFeedback", envelope); err != nil {
		metrics.RemoteFailures.WithLabelValues(ActionAddFeedback).Inc()
		return err
	}
	return nil
}

func (r *RemoteStoreImpl) get(ctx context.Context, target string) ([]byte, error) {
	if target == "" {
		return nil, backoff.Permanent(fmt.Errorf("remote endpoint is not configured: %w", model.ErrNetworkUnavailable))
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, fmt.Errorf("GET %s: %v: %w", target, err, model.ErrNetworkUnavailable)
	}
	return result.([]byte), nil
}

// post はCORSのプリフライトを避けるため text/plain でJSONを送信します
// 応答の本文は信頼しないため読み捨てます
func (r *RemoteStoreImpl) post(ctx context.Context, name string, body interface{}) error {
	ctx, seg := utils.BeginSubsegment(ctx, name)

	if r.endpoint == "" {
		err := fmt.Errorf("remote endpoint is not configured: %w", model.ErrNetworkUnavailable)
		utils.CloseSegment(seg, err)
		return err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		utils.CloseSegment(seg, err)
		return fmt.Errorf("failed to encode request: %w", err)
	}

	_, err = r.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "text/plain;charset=utf-8")
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil, nil
	})
	utils.CloseSegment(seg, err)
	if err != nil {
		return fmt.Errorf("POST %s: %v: %w", r.endpoint, err, model.ErrNetworkUnavailable)
	}
	return nil
}
