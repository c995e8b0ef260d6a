package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunWithTimeout(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		fn      func(context.Context) error
		wantErr bool
	}{
		{
			name:    "時間内に正常終了",
			fn:      func(ctx context.Context) error { return nil },
			wantErr: false,
		},
		{
			name:    "処理のエラーをそのまま返す",
			fn:      func(ctx context.Context) error { return errBoom },
			wantErr: true,
		},
		{
			name: "タイムアウト",
			fn: func(ctx context.Context) error {
				<-ctx.Done()
				time.Sleep(10 * time.Millisecond)
				return nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RunWithTimeout(context.Background(), 50*time.Millisecond, tt.fn)
			if (err != nil) != tt.wantErr {
				t.Errorf("RunWithTimeout() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetStackWithError(t *testing.T) {
	if GetStackWithError(nil) != nil {
		t.Error("nilはnilのまま返すべき")
	}
	base := errors.New("base")
	err := GetStackWithError(base)
	if !errors.Is(err, base) {
		t.Error("元のエラーをラップしているべき")
	}
	if !strings.Contains(err.Error(), "Stack trace:") {
		t.Error("スタックトレースが含まれていない")
	}
}

func TestSegmentHelpers_NoParent(t *testing.T) {
	ctx, seg := BeginSubsegment(context.Background(), "test")
	if seg != nil {
		t.Fatal("親セグメントがない場合はnilになるべき")
	}
	AddMetadata(seg, "k", "v")
	CloseSegment(seg, nil)
	if ctx == nil {
		t.Fatal("ctx should not be nil")
	}
}
