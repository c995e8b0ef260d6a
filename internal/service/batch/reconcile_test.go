package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/casa25-portal/internal/model"
)

type fakeState struct {
	loadErr error
	phase   model.PhaseInfo
	waits   int
}

func (f *fakeState) Load(_ context.Context) error { return f.loadErr }

func (f *fakeState) Snapshot() model.Reservation {
	r := model.NewReservation()
	r.GuestName = "Manuela"
	return r
}

func (f *fakeState) Phase() model.PhaseInfo { return f.phase }
func (f *fakeState) Wait()                  { f.waits++ }

type fakeTicker struct {
	fired []model.NotificationRule
	err   error
	calls int
}

func (f *fakeTicker) Tick(_ context.Context) ([]model.NotificationRule, error) {
	f.calls++
	return f.fired, f.err
}

type fakeReporter struct {
	inputs []*sfn.SendTaskSuccessInput
	err    error
}

func (f *fakeReporter) SendTaskSuccess(_ context.Context, params *sfn.SendTaskSuccessInput, _ ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sfn.SendTaskSuccessOutput{}, nil
}

func TestReconcileBatchService_Run(t *testing.T) {
	tests := []struct {
		name        string
		loadErr     error
		tickErr     error
		reportErr   error
		local       bool
		expectError bool
		wantReports int
	}{
		{name: "同期して結果を通知", wantReports: 1},
		{name: "ローカル環境では通知しない", local: true, wantReports: 0},
		{name: "壊れたキャッシュでも続行", loadErr: model.ErrCorruptState, wantReports: 1},
		{name: "キャッシュの読み込み失敗", loadErr: errors.New("io error"), expectError: true},
		{name: "ルール評価の失敗", tickErr: errors.New("latch failed"), expectError: true},
		{name: "タスク成功通知の失敗", reportErr: errors.New("throttled"), expectError: true, wantReports: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &fakeState{loadErr: tt.loadErr, phase: model.PhaseInfo{Phase: model.PhaseStay}}
			ticker := &fakeTicker{fired: []model.NotificationRule{model.RuleWelcome}, err: tt.tickErr}
			reporter := &fakeReporter{err: tt.reportErr}

			svc := NewReconcileBatchService(state, ticker, reporter, "token-123", tt.local, nil)
			err := svc.Run(context.Background())

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, reporter.inputs, tt.wantReports)
		})
	}
}

func TestReconcileBatchService_Output(t *testing.T) {
	state := &fakeState{phase: model.PhaseInfo{Phase: model.PhaseStay}}
	ticker := &fakeTicker{}
	reporter := &fakeReporter{}

	svc := NewReconcileBatchService(state, ticker, reporter, "token-123", false, nil)
	require.NoError(t, svc.Run(context.Background()))
	require.Len(t, reporter.inputs, 1)

	in := reporter.inputs[0]
	assert.Equal(t, "token-123", aws.ToString(in.TaskToken))

	var got ReconcileResult
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.Output)), &got))
	assert.Equal(t, "Manuela", got.GuestName)
	assert.Equal(t, model.PhaseStay, got.Phase)
	assert.False(t, got.Locked)
	assert.Empty(t, got.Fired)
	assert.Equal(t, 1, ticker.calls)
	assert.Equal(t, 2, state.waits, "同期とルール評価の両方の後に待機する")
}

func TestReconcileBatchService_MissingToken(t *testing.T) {
	svc := NewReconcileBatchService(&fakeState{}, &fakeTicker{}, &fakeReporter{}, "", false, nil)
	assert.Error(t, svc.Run(context.Background()))
}
