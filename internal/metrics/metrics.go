package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "casa25_portal"

var (
	// NoticesFired は発火した通知ルールの件数です
	NoticesFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notices_fired_total",
		Help:      "Number of time-triggered notices fired, by rule.",
	}, []string{"rule"})

	// RemoteFailures はリモートストアへの通信失敗の件数です
	RemoteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_failures_total",
		Help:      "Number of failed remote store calls, by operation.",
	}, []string{"operation"})

	// AuthResults は認証結果の件数です
	AuthResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_results_total",
		Help:      "Number of authentication attempts, by result.",
	}, []string{"result"})

	// LocalWriteFailures はローカルキャッシュへの書き込み失敗の件数です
	LocalWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "local_write_failures_total",
		Help:      "Number of failed local cache writes.",
	})

	// TickDuration はスケジューラの1回の評価にかかった時間です
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduler_tick_duration_seconds",
		Help:      "Duration of a notification scheduler tick.",
		Buckets:   prometheus.DefBuckets,
	})
)
