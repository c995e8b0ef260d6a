package turnover

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/uma-arai/casa25-portal/internal/common/utils"
	"github.com/uma-arai/casa25-portal/internal/model"
	"go.uber.org/zap"
)

// SFNClient は清掃ワークフローの起動に使うStep Functionsの操作です
type SFNClient interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

// CompletionEvent は滞在完了時にワークフローへ渡す入力です
type CompletionEvent struct {
	GuestName    string    `json:"guest_name"`
	CheckIn      time.Time `json:"check_in"`
	CheckOut     time.Time `json:"check_out"`
	CheckedOutAt time.Time `json:"checked_out_at"`
	OpenIssues   int       `json:"open_issues"`
	HasFeedback  bool      `json:"has_feedback"`
}

// NewCompletionEvent は予約から完了イベントを作成します
func NewCompletionEvent(r model.Reservation) CompletionEvent {
	ev := CompletionEvent{
		GuestName:   r.GuestName,
		CheckIn:     r.CheckIn,
		CheckOut:    r.CheckOut,
		HasFeedback: r.Feedback != "",
	}
	if r.CheckoutTime != nil {
		ev.CheckedOutAt = *r.CheckoutTime
	}
	for _, issue := range r.Issues {
		if issue.Status != model.IssueResolved {
			ev.OpenIssues++
		}
	}
	return ev
}

// Notifier はチェックアウト完了を清掃ワークフローに通知します
// ステートマシンが設定されていない場合はログ出力のみ行います
type Notifier struct {
	client          SFNClient
	stateMachineARN string
	logger          *zap.SugaredLogger
}

// NewNotifier は新しいNotifierを作成します
func NewNotifier(client SFNClient, stateMachineARN string, logger *zap.SugaredLogger) *Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Notifier{
		client:          client,
		stateMachineARN: stateMachineARN,
		logger:          logger,
	}
}

// NotifyCompletion はステートマシンの実行を開始します
func (n *Notifier) NotifyCompletion(ctx context.Context, r model.Reservation) error {
	ctx, seg := utils.BeginSubsegment(ctx, "TurnoverNotifier.NotifyCompletion")

	ev := NewCompletionEvent(r)
	input, err := json.Marshal(ev)
	if err != nil {
		utils.CloseSegment(seg, err)
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	if n.client == nil || n.stateMachineARN == "" {
		utils.CloseSegment(seg, nil)
		n.logger.Infow("Turnover workflow is not configured, skipping", "event", string(input))
		return nil
	}

	out, err := n.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(n.stateMachineARN),
		Name:            aws.String("checkout-" + uuid.NewString()),
		Input:           aws.String(string(input)),
	})
	utils.CloseSegment(seg, err)
	if err != nil {
		return fmt.Errorf("failed to start turnover workflow: %w", err)
	}

	n.logger.Infow("Turnover workflow started", "execution_arn", aws.ToString(out.ExecutionArn), "guest", ev.GuestName)
	return nil
}
