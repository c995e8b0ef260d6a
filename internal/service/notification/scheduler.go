package notification

import (
	"context"
	"sync"
	"time"

	"github.com/uma-arai/casa25-portal/internal/common/utils"
	"github.com/uma-arai/casa25-portal/internal/metrics"
	"github.com/uma-arai/casa25-portal/internal/model"
	"github.com/uma-arai/casa25-portal/internal/repository"
	"github.com/uma-arai/casa25-portal/internal/service/notice"
	"go.uber.org/zap"
)

// DefaultInterval はスケジューラの評価間隔です
const DefaultInterval = time.Minute

// ReservationState はスケジューラが使う予約の読み書きです
type ReservationState interface {
	Snapshot() model.Reservation
	Now() time.Time
	LatchNotified(ctx context.Context, rules []model.NotificationRule) error
}

// RainRisk は降雨リスクの判定を差し替えるための関数です
type RainRisk func(ctx context.Context, now time.Time) bool

// WeatherRainRisk は天気予報から降雨リスクを判定します
// 取得に失敗した場合はリスクなしとして扱います
func WeatherRainRisk(weather repository.WeatherRepository, logger *zap.SugaredLogger) RainRisk {
	return func(ctx context.Context, now time.Time) bool {
		risk, err := weather.RainRisk(ctx, now)
		if err != nil {
			if logger != nil {
				logger.Warnw("Failed to check rain risk", "error", err)
			}
			return false
		}
		return risk
	}
}

// Scheduler は一定間隔で通知ルールを評価します
type Scheduler struct {
	mu       sync.Mutex
	state    ReservationState
	notices  notice.Poster
	rainRisk RainRisk
	history  repository.NotificationRepository
	loc      *time.Location
	interval time.Duration
	logger   *zap.SugaredLogger
}

// NewScheduler は新しいSchedulerを作成します
// historyがnilの場合、発火履歴は保存しません
func NewScheduler(state ReservationState, notices notice.Poster, rainRisk RainRisk, history repository.NotificationRepository, loc *time.Location, interval time.Duration, logger *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		state:    state,
		notices:  notices,
		rainRisk: rainRisk,
		history:  history,
		loc:      loc,
		interval: interval,
		logger:   logger,
	}
}

// Run は起動時に1回評価し、その後はctxがキャンセルされるまで一定間隔で評価します
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil {
		s.logger.Errorw("Scheduler tick failed", "error", err)
	}
}

// Tick は全ルールを1回評価し、発火したルールを返します
// 発火したルールは通知を掲示し、フラグをまとめて1回の保存でラッチします
func (s *Scheduler) Tick(ctx context.Context) ([]model.NotificationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(started).Seconds()) }()

	ctx, seg := utils.BeginSubsegment(ctx, "NotificationScheduler.Tick")

	r := s.state.Snapshot()
	now := s.state.Now()
	due := Due(r, now, s.loc, func() bool {
		return s.rainRisk != nil && s.rainRisk(ctx, now)
	})
	if len(due) == 0 {
		utils.CloseSegment(seg, nil)
		return nil, nil
	}

	for _, rule := range due {
		msg := Message(rule, r, s.loc)
		if s.notices != nil {
			s.notices.Post(notice.LevelInfo, msg)
		}
		metrics.NoticesFired.WithLabelValues(string(rule)).Inc()
		s.logger.Infow("Notification fired", "rule", rule, "guest", r.GuestName)
		s.record(ctx, model.NewNotificationRecord(r.GuestName, rule, msg, now))
	}

	err := s.state.LatchNotified(ctx, due)
	utils.CloseSegment(seg, err)
	return due, err
}

func (s *Scheduler) record(ctx context.Context, rec model.NotificationRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, &rec); err != nil {
		s.logger.Warnw("Failed to record notification history", "rule", rec.Rule, "error", err)
	}
}
