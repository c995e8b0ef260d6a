package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uma-arai/casa25-portal/internal/common/utils"
	"github.com/uma-arai/casa25-portal/internal/metrics"
	"github.com/uma-arai/casa25-portal/internal/model"
	"github.com/uma-arai/casa25-portal/internal/repository"
	"github.com/uma-arai/casa25-portal/internal/service/notice"
	"go.uber.org/zap"
)

// 画面に表示する通知の文言です
const (
	msgOffline      = "Guardado solo localmente (sin internet)"
	msgSyncFailed   = "Error de conexión, usando datos locales"
	msgSynced       = "Datos actualizados desde la nube"
	msgIssueSent    = "Reporte enviado. Nos pondremos en contacto pronto."
	msgFeedbackSent = "¡Gracias! Tomamos nota para tu próxima visita."
	msgUpdated      = "Reserva actualizada correctamente"
)

// LocalCache は予約スナップショットの端末上の保存先です
type LocalCache interface {
	Load(ctx context.Context) (model.Reservation, error)
	Save(ctx context.Context, r model.Reservation) error
}

// CompletionNotifier は滞在の完了を外部に知らせます
type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, r model.Reservation) error
}

// Option はManagerの設定を変更します
type Option func(*Manager)

// WithClock は現在時刻の取得方法を差し替えます
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRemoteTimeout はバックグラウンドの通信のタイムアウトを設定します
func WithRemoteTimeout(d time.Duration) Option {
	return func(m *Manager) { m.remoteTimeout = d }
}

// WithCompletionNotifier はチェックアウト完了時の通知先を設定します
func WithCompletionNotifier(n CompletionNotifier) Option {
	return func(m *Manager) { m.completion = n }
}

// Manager はメモリ上の唯一の予約を所有し、変更と永続化を担当します
// 変更は全てローカルキャッシュに同期的に書き込まれ、その後リモートストアへ非同期に送信されます
type Manager struct {
	mu       sync.Mutex
	current  model.Reservation
	revision uint64

	cache      LocalCache
	remote     repository.RemoteStore
	codec      model.Codec
	notices    notice.Poster
	completion CompletionNotifier
	logger     *zap.SugaredLogger

	now           func() time.Time
	remoteTimeout time.Duration

	// save_reservation は古いスナップショットでリモートを上書きしないよう番号で管理します
	sendMu   sync.Mutex
	saveSeq  uint64
	lastSent uint64

	wg sync.WaitGroup
}

// NewManager は新しいManagerを作成します
func NewManager(cache LocalCache, remote repository.RemoteStore, codec model.Codec, notices notice.Poster, logger *zap.SugaredLogger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Manager{
		current:       model.NewReservation(),
		cache:         cache,
		remote:        remote,
		codec:         codec,
		notices:       notices,
		logger:        logger,
		now:           time.Now,
		remoteTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now は注入された時計の現在時刻を返します
func (m *Manager) Now() time.Time {
	return m.now()
}

// Snapshot は現在の予約の複製を返します
func (m *Manager) Snapshot() model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// Phase は現在時刻における滞在フェーズを返します
func (m *Manager) Phase() model.PhaseInfo {
	r := m.Snapshot()
	return model.ComputePhase(m.now(), r.CheckIn, r.CheckOut)
}

// Load はローカルキャッシュから予約を読み込み、バックグラウンドでリモートとの同期を開始します
// ローカルの日付が壊れている場合は安全な既定値で起動し、ErrCorruptStateを返します
func (m *Manager) Load(ctx context.Context) error {
	r, err := m.cache.Load(ctx)
	var loadErr error
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrCacheMiss):
		m.logger.Infow("No cached reservation, starting empty")
	case errors.Is(err, model.ErrCorruptState):
		m.logger.Errorw("Cached reservation is corrupt, falling back to safe default", "error", err)
		loadErr = err
	default:
		m.logger.Errorw("Failed to read local cache", "error", err)
		loadErr = fmt.Errorf("failed to read local cache: %w", err)
	}
	if err != nil {
		r = model.NewReservation()
	}

	m.mu.Lock()
	m.current = r
	m.revision++
	startRev := m.revision
	m.mu.Unlock()

	m.goBackground("reconcile", func(ctx context.Context) error {
		return m.reconcileFrom(ctx, startRev)
	})
	return loadErr
}

// Reconcile はリモートストアの予約をフィールド単位で現在の予約に上書きし、ローカルに書き込みます
// 取得中にローカルの変更があった場合、取得した内容は破棄されます
func (m *Manager) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	startRev := m.revision
	m.mu.Unlock()
	return m.reconcileFrom(ctx, startRev)
}

func (m *Manager) reconcileFrom(ctx context.Context, startRev uint64) error {
	ctx, seg := utils.BeginSubsegment(ctx, "StateManager.Reconcile")

	body, err := m.remote.FetchState(ctx)
	if err != nil {
		utils.CloseSegment(seg, err)
		m.logger.Warnw("Remote fetch failed, using local state", "error", err)
		m.post(notice.LevelWarning, msgSyncFailed)
		return err
	}
	if model.IsEmptyMarker(body) {
		utils.CloseSegment(seg, nil)
		m.logger.Debugw("Remote store is empty")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.revision != startRev {
		utils.CloseSegment(seg, nil)
		m.logger.Infow("Discarding stale remote state", "started_at", startRev, "current", m.revision)
		return nil
	}

	merged, err := m.codec.Overlay(m.current, body)
	if err != nil {
		utils.CloseSegment(seg, err)
		m.logger.Errorw("Remote reservation rejected, keeping last known good", "error", err)
		return err
	}
	m.current = merged
	m.revision++

	err = m.writeLocalLocked(ctx)
	utils.CloseSegment(seg, err)
	if err != nil {
		return err
	}
	m.post(notice.LevelSuccess, msgSynced)
	return nil
}

// Save は現在の予約をローカルに書き込み、リモートへの送信を開始します
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(ctx)
}

// AddIssue は問題報告を追加して保存し、問題のログをリモートに送信します
func (m *Manager) AddIssue(ctx context.Context, text string) (model.Issue, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Issue{}, fmt.Errorf("issue text: %w", model.ErrEmptyInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	issue := model.Issue{
		ID:     uuid.NewString(),
		Date:   m.codec.Stamp(m.now()),
		Text:   text,
		Status: model.IssuePending,
	}
	m.current.Issues = append(m.current.Issues, issue)
	m.revision++

	if err := m.saveLocked(ctx); err != nil {
		return issue, err
	}
	m.sendFeedback(repository.FeedbackTypeIssue, text, m.current.GuestName, msgIssueSent)
	return issue, nil
}

// SetFeedback は感想を設定して保存します
func (m *Manager) SetFeedback(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current.Feedback = strings.TrimSpace(text)
	m.revision++
	return m.saveLocked(ctx)
}

// ToggleChecklistItem はチェックリストの項目を反転して保存し、反転後の値を返します
func (m *Manager) ToggleChecklistItem(ctx context.Context, id string) (bool, error) {
	item, err := model.ParseChecklistItem(id)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	done := !m.current.Checklist[item]
	m.current.Checklist[item] = done
	m.revision++
	return done, m.saveLocked(ctx)
}

// IsCheckoutEligible はチェックリストの全項目が完了しているかを返します
func (m *Manager) IsCheckoutEligible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Checklist.Complete()
}

// AdoptGuestIdentity は管理者が入力した予約を反映します
// ゲスト名が変わる場合は滞在スコープのフィールドを初期化してから反映します
func (m *Manager) AdoptGuestIdentity(ctx context.Context, rec model.Reservation) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.Clone()
	if rec.GuestName != next.GuestName {
		m.logger.Infow("Guest identity changed, resetting stay", "from", next.GuestName, "to", rec.GuestName)
		next.ResetStayScoped()
	}
	next.GuestName = rec.GuestName
	next.DoorCode = rec.DoorCode
	next.GuestPin = rec.GuestPin
	next.CheckIn = m.codec.StayTime(rec.CheckIn)
	next.CheckOut = m.codec.StayTime(rec.CheckOut)
	next.MaxGuests = rec.MaxGuests
	next.PetsAllowed = rec.PetsAllowed

	m.current = next
	m.revision++
	if err := m.saveLocked(ctx); err != nil {
		return err
	}
	m.post(notice.LevelSuccess, msgUpdated)
	return nil
}

// Revision は予約が変更されるたびに増える番号を返します
func (m *Manager) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

// AdoptRemote はPIN検索で取得した予約を現在の予約に上書きし、ローカルにのみ書き込みます
// startRev以降に予約が変更されていた場合は上書きせずErrStaleStateを返します
func (m *Manager) AdoptRemote(ctx context.Context, body []byte, startRev uint64) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.revision != startRev {
		m.logger.Infow("Discarding stale PIN lookup", "started_at", startRev, "current", m.revision)
		return m.current.Clone(), fmt.Errorf("adopt remote: %w", model.ErrStaleState)
	}

	merged, err := m.codec.Overlay(m.current, body)
	if err != nil {
		return m.current.Clone(), err
	}
	m.current = merged
	m.revision++
	if err := m.writeLocalLocked(ctx); err != nil {
		return m.current.Clone(), err
	}
	return m.current.Clone(), nil
}

// FinalizeCheckout はチェックアウト日時を記録して保存し、滞在の完了を通知します
// チェックリストの完了確認は呼び出し側で IsCheckoutEligible を使って行います
func (m *Manager) FinalizeCheckout(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.codec.Stamp(m.now())
	m.current.CheckoutTime = &at
	m.revision++
	if err := m.saveLocked(ctx); err != nil {
		return at, err
	}
	if m.current.Feedback != "" {
		m.sendFeedback(repository.FeedbackTypeFeedback, m.current.Feedback, m.current.GuestName, msgFeedbackSent)
	}

	if m.completion != nil {
		snapshot := m.current.Clone()
		m.goBackground("completion", func(ctx context.Context) error {
			return m.completion.NotifyCompletion(ctx, snapshot)
		})
	}
	return at, nil
}

// LatchNotified は発火したルールのフラグをまとめて立てて1回だけ保存します
func (m *Manager) LatchNotified(ctx context.Context, rules []model.NotificationRule) error {
	if len(rules) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rule := range rules {
		if err := m.current.Notified.Latch(rule); err != nil {
			return err
		}
	}
	m.revision++
	return m.saveLocked(ctx)
}

// Wait はバックグラウンドの処理が全て終わるまで待ちます
func (m *Manager) Wait() {
	m.wg.Wait()
}

// saveLocked はローカルへの書き込みが成功した後にだけリモートへの送信を開始します
func (m *Manager) saveLocked(ctx context.Context) error {
	if err := m.writeLocalLocked(ctx); err != nil {
		return err
	}

	payload, err := m.codec.Encode(m.current)
	if err != nil {
		return err
	}
	m.saveSeq++
	seq := m.saveSeq
	m.goBackground("save_reservation", func(ctx context.Context) error {
		m.sendMu.Lock()
		defer m.sendMu.Unlock()
		if seq < m.lastSent {
			return nil
		}
		m.lastSent = seq
		return m.remote.SaveReservation(ctx, payload)
	})
	return nil
}

func (m *Manager) writeLocalLocked(ctx context.Context) error {
	ctx, seg := utils.BeginSubsegment(ctx, "StateManager.WriteLocal")
	err := m.cache.Save(ctx, m.current)
	utils.CloseSegment(seg, err)
	if err != nil {
		metrics.LocalWriteFailures.Inc()
		m.logger.Errorw("Failed to write local cache", "error", err)
		return fmt.Errorf("failed to write local cache: %w", err)
	}
	return nil
}

func (m *Manager) sendFeedback(kind repository.FeedbackType, message, guestName, okMessage string) {
	entry := repository.FeedbackEntry{Type: kind, Message: message, GuestName: guestName}
	m.goBackground("add_feedback", func(ctx context.Context) error {
		if err := m.remote.AddFeedback(ctx, entry); err != nil {
			return err
		}
		m.post(notice.LevelSuccess, okMessage)
		return nil
	})
}

// goBackground は呼び出し元のリクエストから切り離して処理を実行します
// 失敗はログと一時的な通知に変換され、呼び出し元には返りません
func (m *Manager) goBackground(name string, fn func(ctx context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.remoteTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			m.logger.Warnw("Background task failed", "task", name, "error", err)
			if errors.Is(err, model.ErrNetworkUnavailable) && name != "reconcile" {
				m.post(notice.LevelWarning, msgOffline)
			}
		}
	}()
}

func (m *Manager) post(level notice.Level, message string) {
	if m.notices == nil {
		return
	}
	m.notices.Post(level, message)
}
