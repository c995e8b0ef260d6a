package utils

import (
	"context"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// BeginSubsegment はX-Rayのサブセグメントを開始します
// 親セグメントがない場合やSDKが無効な場合はnilのセグメントを返します
func BeginSubsegment(ctx context.Context, name string) (context.Context, *xray.Segment) {
	if xray.GetSegment(ctx) == nil {
		return ctx, nil
	}
	return xray.BeginSubsegment(ctx, name)
}

// CloseSegment はnilを許容してセグメントを閉じます
func CloseSegment(seg *xray.Segment, err error) {
	if seg == nil {
		return
	}
	seg.Close(err)
}

// AddMetadata はnilを許容してメタデータを追加します
func AddMetadata(seg *xray.Segment, key string, value interface{}) {
	if seg == nil {
		return
	}
	_ = seg.AddMetadata(key, value)
}
