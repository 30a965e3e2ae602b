package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BridgeMetrics holds Prometheus metrics for bridge internal monitoring
type BridgeMetrics struct {
	// Poll duration histogram (in seconds)
	PollDurationSeconds prometheus.Histogram

	// Poll error counter
	PollErrorsTotal prometheus.Counter

	// Build info gauge
	BuildInfo prometheus.Gauge

	// Authentication attempt counter (login or refresh initiated)
	AuthAttemptsTotal prometheus.Counter

	// Authentication failure counter (attempt that did not yield a token)
	AuthFailuresTotal prometheus.Counter

	// Token refresh failure counter (refresh rejected, fell back to login)
	TokenRefreshFailuresTotal prometheus.Counter

	// Device command error counter
	CommandErrorsTotal prometheus.Counter

	// Last successful authentication timestamp (unix seconds)
	LastAuthenticationSuccessUnix prometheus.Gauge
}

// NewBridgeMetrics creates and registers bridge health metrics
func NewBridgeMetrics(reg prometheus.Registerer) (*BridgeMetrics, error) {
	bm := &BridgeMetrics{
		// Poll duration histogram with buckets: 0.1, 0.2, 0.4, 0.8, 1.6, 3.2
		PollDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "homecontrol_bridge_poll_duration_seconds",
			Help:    "Time taken to poll device status from the Home + Control API in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 6),
		}),

		PollErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homecontrol_bridge_poll_errors_total",
			Help: "Total number of errors while polling device status",
		}),

		BuildInfo: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "homecontrol_bridge_build_info",
			Help: "Build information for the bridge (value is always 1)",
		}),

		AuthAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homecontrol_bridge_auth_attempts_total",
			Help: "Total number of authentication attempts (token refresh or full login)",
		}),

		AuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homecontrol_bridge_auth_failures_total",
			Help: "Total number of authentication attempts that did not yield a token",
		}),

		TokenRefreshFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homecontrol_bridge_token_refresh_failures_total",
			Help: "Total number of refresh-token rejections that fell back to full login",
		}),

		CommandErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homecontrol_bridge_command_errors_total",
			Help: "Total number of device command failures",
		}),

		LastAuthenticationSuccessUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "homecontrol_bridge_last_authentication_success_unix",
			Help: "Unix timestamp of the last successful authentication",
		}),
	}

	collectors := []prometheus.Collector{
		bm.PollDurationSeconds,
		bm.PollErrorsTotal,
		bm.BuildInfo,
		bm.AuthAttemptsTotal,
		bm.AuthFailuresTotal,
		bm.TokenRefreshFailuresTotal,
		bm.CommandErrorsTotal,
		bm.LastAuthenticationSuccessUnix,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	bm.BuildInfo.Set(1)

	return bm, nil
}

// RecordPollDuration records the duration of one status poll sweep
func (bm *BridgeMetrics) RecordPollDuration(duration float64) {
	bm.PollDurationSeconds.Observe(duration)
}

// IncPollErrors increments the poll error counter
func (bm *BridgeMetrics) IncPollErrors() {
	bm.PollErrorsTotal.Inc()
}

// IncAuthAttempts increments the authentication attempt counter
func (bm *BridgeMetrics) IncAuthAttempts() {
	bm.AuthAttemptsTotal.Inc()
}

// IncAuthFailures increments the authentication failure counter
func (bm *BridgeMetrics) IncAuthFailures() {
	bm.AuthFailuresTotal.Inc()
}

// IncTokenRefreshFailures increments the refresh failure counter
func (bm *BridgeMetrics) IncTokenRefreshFailures() {
	bm.TokenRefreshFailuresTotal.Inc()
}

// IncCommandErrors increments the device command error counter
func (bm *BridgeMetrics) IncCommandErrors() {
	bm.CommandErrorsTotal.Inc()
}

// RecordAuthenticationSuccess records a successful authentication by setting the timestamp
func (bm *BridgeMetrics) RecordAuthenticationSuccess() {
	bm.LastAuthenticationSuccessUnix.Set(float64(time.Now().Unix()))
}
