package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/goccy/go-json"
	"github.com/uma-arai/casa25-portal/internal/common/utils"
	"github.com/uma-arai/casa25-portal/internal/model"
	"go.uber.org/zap"
)

// ReservationState はバッチが使う予約の操作です
type ReservationState interface {
	Load(ctx context.Context) error
	Snapshot() model.Reservation
	Phase() model.PhaseInfo
	Wait()
}

// RuleTicker は通知ルールを一度だけ評価します
type RuleTicker interface {
	Tick(ctx context.Context) ([]model.NotificationRule, error)
}

// TaskReporter はStep Functionsへのタスク結果の通知です
type TaskReporter interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
}

// ReconcileResult はStep Functionsに返す同期結果です
type ReconcileResult struct {
	GuestName string                   `json:"guest_name"`
	Phase     model.StayPhase          `json:"phase"`
	Locked    bool                     `json:"locked"`
	Fired     []model.NotificationRule `json:"fired"`
}

// ReconcileBatchService はローカルキャッシュとリモートストアの同期と通知ルールの評価を行います
type ReconcileBatchService struct {
	state     ReservationState
	ticker    RuleTicker
	reporter  TaskReporter
	taskToken string
	local     bool
	logger    *zap.SugaredLogger
}

// NewReconcileBatchService は新しいReconcileBatchServiceを作成します
// reporterがnilまたはlocalがtrueの場合、タスク成功の通知は行いません
func NewReconcileBatchService(state ReservationState, ticker RuleTicker, reporter TaskReporter, taskToken string, local bool, logger *zap.SugaredLogger) *ReconcileBatchService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ReconcileBatchService{
		state:     state,
		ticker:    ticker,
		reporter:  reporter,
		taskToken: taskToken,
		local:     local,
		logger:    logger,
	}
}

// Run は同期バッチ処理を実行します
func (s *ReconcileBatchService) Run(ctx context.Context) error {
	ctx, seg := utils.BeginSubsegment(ctx, "ReconcileBatchService.Run")
	startTime := time.Now()

	result, err := s.reconcile(ctx)
	if err != nil {
		utils.CloseSegment(seg, err)
		return utils.GetStackWithError(err)
	}

	if err := s.sendTaskSuccess(ctx, result); err != nil {
		utils.CloseSegment(seg, err)
		return utils.GetStackWithError(fmt.Errorf("failed to send task success: %w", err))
	}

	duration := time.Since(startTime)
	utils.AddMetadata(seg, "duration", duration.String())
	utils.CloseSegment(seg, nil)

	s.logger.Infow("Reconcile batch completed", "duration", duration, "fired", result.Fired)
	return nil
}

func (s *ReconcileBatchService) reconcile(ctx context.Context) (ReconcileResult, error) {
	if err := s.state.Load(ctx); err != nil {
		// 壊れたキャッシュは安全な既定値で続行し、リモートの内容で上書きされるのを待つ
		if !errors.Is(err, model.ErrCorruptState) {
			return ReconcileResult{}, fmt.Errorf("failed to load reservation: %w", err)
		}
		s.logger.Warnw("Local cache was corrupt, continuing with remote state", "error", err)
	}
	// Loadが開始したリモートとの同期を待つ
	s.state.Wait()

	fired, err := s.ticker.Tick(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("failed to evaluate notification rules: %w", err)
	}
	s.state.Wait()

	phase := s.state.Phase()
	if fired == nil {
		fired = []model.NotificationRule{}
	}
	return ReconcileResult{
		GuestName: s.state.Snapshot().GuestName,
		Phase:     phase.Phase,
		Locked:    phase.Locked,
		Fired:     fired,
	}, nil
}

// sendTaskSuccess はStep Functionsのタスク成功を通知します
func (s *ReconcileBatchService) sendTaskSuccess(ctx context.Context, result ReconcileResult) error {
	if s.local || s.reporter == nil {
		s.logger.Infow("Local environment detected. Skipping Step Functions task success notification")
		return nil
	}
	if s.taskToken == "" {
		return fmt.Errorf("task token is not set")
	}

	output, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.reporter.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(s.taskToken),
		Output:    aws.String(string(output)),
	})
	if err != nil {
		return err
	}

	s.logger.Infow("Sent task success", "output", string(output))
	return nil
}
