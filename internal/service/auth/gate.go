package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/uma-arai/casa25-portal/internal/common/utils"
	"github.com/uma-arai/casa25-portal/internal/metrics"
	"github.com/uma-arai/casa25-portal/internal/model"
	"github.com/uma-arai/casa25-portal/internal/repository"
	"go.uber.org/zap"
)

// Role は認証済みセッションの権限です
type Role string

const (
	RoleGuest Role = "guest"
	RoleAdmin Role = "admin"
)

// セッションの状態です
const (
	SessionLocked = "locked"
	SessionGuest  = "guest"
	SessionAdmin  = "admin"
)

// セッションの遷移イベントです
const (
	EventLoginGuest = "login_guest"
	EventLoginAdmin = "login_admin"
	EventLogout     = "logout"
)

// ReservationState は認証に必要な予約の読み書きです
type ReservationState interface {
	Snapshot() model.Reservation
	Now() time.Time
	Revision() uint64
	AdoptRemote(ctx context.Context, body []byte, startRev uint64) (model.Reservation, error)
}

// Gate はPINを検証してセッションを管理します
// ログアウトされるまでセッションは継続します
type Gate struct {
	mu        sync.Mutex
	session   *fsm.FSM
	adminPINs map[string]struct{}

	state  ReservationState
	remote repository.RemoteStore
	codec  model.Codec
	logger *zap.SugaredLogger
}

// NewGate は新しいGateを作成します
func NewGate(adminPINs []string, state ReservationState, remote repository.RemoteStore, codec model.Codec, logger *zap.SugaredLogger) *Gate {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	pins := make(map[string]struct{}, len(adminPINs))
	for _, p := range adminPINs {
		pins[p] = struct{}{}
	}

	g := &Gate{
		adminPINs: pins,
		state:     state,
		remote:    remote,
		codec:     codec,
		logger:    logger,
	}
	g.session = fsm.NewFSM(
		SessionLocked,
		fsm.Events{
			{Name: EventLoginGuest, Src: []string{SessionLocked, SessionAdmin}, Dst: SessionGuest},
			{Name: EventLoginAdmin, Src: []string{SessionLocked, SessionGuest}, Dst: SessionAdmin},
			{Name: EventLogout, Src: []string{SessionGuest, SessionAdmin}, Dst: SessionLocked},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				g.logger.Infow("Session state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
	return g
}

// Authenticate はPINを検証し、成功した場合はセッションを開始します
// 管理者PIN、現在の予約のゲストPIN、リモートのPIN検索の順に照合します
func (g *Gate) Authenticate(ctx context.Context, pin string) (Role, error) {
	ctx, seg := utils.BeginSubsegment(ctx, "AuthGate.Authenticate")

	role, err := g.authenticate(ctx, strings.TrimSpace(pin))
	utils.CloseSegment(seg, err)
	metrics.AuthResults.WithLabelValues(resultLabel(role, err)).Inc()
	if err != nil {
		return "", err
	}

	event := EventLoginGuest
	if role == RoleAdmin {
		event = EventLoginAdmin
	}
	if err := g.transition(ctx, event); err != nil {
		return "", err
	}
	return role, nil
}

func (g *Gate) authenticate(ctx context.Context, pin string) (Role, error) {
	if pin == "" {
		return "", fmt.Errorf("pin: %w", model.ErrEmptyInput)
	}

	if _, ok := g.adminPINs[pin]; ok {
		return RoleAdmin, nil
	}

	// PIN検索の間に管理者が予約を更新した場合、古い検索結果で上書きしない
	startRev := g.state.Revision()
	current := g.state.Snapshot()
	if current.GuestPin != "" && pin == current.GuestPin {
		return g.checkDates(current)
	}

	body, err := g.remote.FetchByPIN(ctx, pin)
	if err != nil {
		g.logger.Warnw("Remote PIN lookup failed", "error", err)
		return "", fmt.Errorf("%w: %v", model.ErrPinNotFound, err)
	}
	fetched, err := g.codec.Decode(body)
	if err != nil || !fetched.WellFormed() {
		return "", model.ErrPinNotFound
	}

	adopted, err := g.state.AdoptRemote(ctx, body, startRev)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrCorruptState):
		return "", model.ErrPinNotFound
	case errors.Is(err, model.ErrStaleState):
		// 更新後の予約に対して照合し直す
		latest := g.state.Snapshot()
		if latest.GuestPin != "" && pin == latest.GuestPin {
			return g.checkDates(latest)
		}
		return "", model.ErrPinNotFound
	default:
		// ローカルへの書き込み失敗はメモリ上の採用を取り消さない
		g.logger.Errorw("Adopted reservation could not be cached", "error", err)
	}
	g.logger.Infow("Reservation adopted from remote PIN lookup", "guest", adopted.GuestName)
	return g.checkDates(adopted)
}

func (g *Gate) checkDates(r model.Reservation) (Role, error) {
	if r.Expired(g.state.Now()) {
		return "", model.ErrExpiredReservation
	}
	return RoleGuest, nil
}

// Logout はセッションを終了します。予約データは保持されます
func (g *Gate) Logout(ctx context.Context) error {
	return g.transition(ctx, EventLogout)
}

// Role は現在の権限を返します。未認証の場合はゲストです
func (g *Gate) Role() Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session.Current() == SessionAdmin {
		return RoleAdmin
	}
	return RoleGuest
}

// IsAuthenticated は認証済みかを返します
func (g *Gate) IsAuthenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session.Current() != SessionLocked
}

// transition は同じ状態への遷移を送らないようにしてイベントを送信します
func (g *Gate) transition(ctx context.Context, event string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.session.Can(event) {
		return nil
	}
	if err := g.session.Event(ctx, event); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return nil
		}
		return fmt.Errorf("session transition %s failed: %w", event, err)
	}
	return nil
}

func resultLabel(role Role, err error) string {
	switch {
	case err == nil:
		return string(role)
	case errors.Is(err, model.ErrExpiredReservation):
		return "expired"
	case errors.Is(err, model.ErrEmptyInput):
		return "empty"
	default:
		return "not_found"
	}
}
