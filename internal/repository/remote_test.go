package repository

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/casa25-portal/internal/model"
)

const (
	testEndpoint = testHost + testPath
	testHost     = "https://script.example.com"
	testPath     = "/macros/s/casa25/exec"
)

func newTestRemote() *RemoteStoreImpl {
	return NewRemoteStore(testEndpoint, time.Second, WithRetry(2, time.Millisecond))
}

func TestRemoteStore_FetchState(t *testing.T) {
	tests := []struct {
		name      string
		setup     func()
		wantEmpty bool
		wantGuest string
		wantErr   error
	}{
		{
			name: "予約が返される",
			setup: func() {
				gock.New(testEndpoint).Reply(200).JSON(map[string]interface{}{
					"huespedNombre": "Manuela",
					"guestPin":      "8505",
				})
			},
			wantGuest: "Manuela",
		},
		{
			name: "空マーカーが返される",
			setup: func() {
				gock.New(testEndpoint).Reply(200).JSON(map[string]interface{}{"empty": true})
			},
			wantEmpty: true,
		},
		{
			name: "一時的なエラーは再試行される",
			setup: func() {
				gock.New(testEndpoint).Reply(502)
				gock.New(testEndpoint).Reply(200).JSON(map[string]interface{}{"huespedNombre": "Hugo"})
			},
			wantGuest: "Hugo",
		},
		{
			name: "再試行しても失敗すればNetworkUnavailable",
			setup: func() {
				gock.New(testEndpoint).Times(3).ReplyError(errors.New("connection refused"))
			},
			wantErr: model.ErrNetworkUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			tt.setup()

			body, err := newTestRemote().FetchState(context.Background())
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEmpty, model.IsEmptyMarker(body))
			if tt.wantGuest != "" {
				r, err := model.NewCodec(time.UTC).Decode(body)
				require.NoError(t, err)
				assert.Equal(t, tt.wantGuest, r.GuestName)
			}
			assert.True(t, gock.IsDone())
		})
	}
}

func TestRemoteStore_FetchByPIN(t *testing.T) {
	defer gock.Off()
	gock.New(testEndpoint).
		MatchParam("pin", "8505").
		Reply(200).
		JSON(map[string]interface{}{"huespedNombre": "Manuela", "guestPin": 8505})

	body, err := newTestRemote().FetchByPIN(context.Background(), "8505")
	require.NoError(t, err)

	r, err := model.NewCodec(time.UTC).Decode(body)
	require.NoError(t, err)
	assert.True(t, r.WellFormed())
	assert.Equal(t, "8505", r.GuestPin)
}

func TestRemoteStore_Post(t *testing.T) {
	tests := []struct {
		name string
		call func(r *RemoteStoreImpl) error
		want map[string]interface{}
	}{
		{
			name: "save_reservation はpayloadを包んで送る",
			call: func(r *RemoteStoreImpl) error {
				return r.SaveReservation(context.Background(), []byte(`{"huespedNombre":"Manuela"}`))
			},
			want: map[string]interface{}{
				"action":  "save_reservation",
				"payload": map[string]interface{}{"huespedNombre": "Manuela"},
			},
		},
		{
			name: "add_feedback は種別とゲスト名を送る",
			call: func(r *RemoteStoreImpl) error {
				return r.AddFeedback(context.Background(), FeedbackEntry{
					Type: FeedbackTypeIssue, Message: "AC not cooling", GuestName: "Manuela",
				})
			},
			want: map[string]interface{}{
				"action":    "add_feedback",
				"type":      "issue",
				"message":   "AC not cooling",
				"guestName": "Manuela",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()

			var got map[string]interface{}
			var contentType string
			gock.New(testEndpoint).
				Post(testPath).
				AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
					contentType = req.Header.Get("Content-Type")
					raw, err := io.ReadAll(req.Body)
					if err != nil {
						return false, err
					}
					return true, json.Unmarshal(raw, &got)
				}).
				Reply(200).
				BodyString("ok")

			require.NoError(t, tt.call(newTestRemote()))
			assert.Contains(t, contentType, "text/plain")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteStore_Offline(t *testing.T) {
	r := NewRemoteStore("", time.Second)

	_, err := r.FetchState(context.Background())
	assert.True(t, errors.Is(err, model.ErrNetworkUnavailable))
	_, err = r.FetchByPIN(context.Background(), "1234")
	assert.True(t, errors.Is(err, model.ErrNetworkUnavailable))
	err = r.SaveReservation(context.Background(), []byte(`{}`))
	assert.True(t, errors.Is(err, model.ErrNetworkUnavailable))
}

func TestRemoteStore_PostFailure(t *testing.T) {
	defer gock.Off()
	gock.New(testEndpoint).Post(testPath).Reply(500)

	err := newTestRemote().AddFeedback(context.Background(), FeedbackEntry{Type: FeedbackTypeFeedback, Message: "gracias"})
	assert.True(t, errors.Is(err, model.ErrNetworkUnavailable))
}
