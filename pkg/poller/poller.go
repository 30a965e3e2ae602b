// Package poller periodically reads device status and publishes it as
// Prometheus gauges.
package poller

import (
	"context"
	"time"

	"homecontrol-bridge/pkg/homecontrol"
	"homecontrol-bridge/pkg/logger"
	"homecontrol-bridge/pkg/metrics"
)

// deviceController is the slice of homecontrol.Controller the poller needs.
type deviceController interface {
	DiscoverDevices(ctx context.Context) ([]homecontrol.Device, error)
	GetStatus(ctx context.Context, moduleID string) (homecontrol.Status, error)
}

// Poller drives the periodic status loop. Transient failures are logged and
// the loop continues on its next tick; credential-class failures halt the
// loop entirely so a locked-out account is not hammered with retries.
type Poller struct {
	controller deviceController
	interval   time.Duration
	descs      *metrics.MetricDescriptors
	bm         *metrics.BridgeMetrics
	log        *logger.Logger
}

// New creates a poller over the given controller.
func New(controller deviceController, interval time.Duration, descs *metrics.MetricDescriptors, bm *metrics.BridgeMetrics, log *logger.Logger) *Poller {
	return &Poller{
		controller: controller,
		interval:   interval,
		descs:      descs,
		bm:         bm,
		log:        log,
	}
}

// Run polls immediately and then on every interval tick until the context is
// cancelled or a credential failure occurs. Returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.pollOnce(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("polling stopped")
			return nil
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// pollOnce runs one sweep. A non-nil return halts the loop.
func (p *Poller) pollOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		p.bm.RecordPollDuration(time.Since(start).Seconds())
	}()

	devices, err := p.controller.DiscoverDevices(ctx)
	if err != nil {
		return p.classify(err, "device discovery failed")
	}

	for _, d := range devices {
		if ctx.Err() != nil {
			return nil
		}

		status, err := p.controller.GetStatus(ctx, d.ID)
		labels := []string{d.PlantID, d.ID, d.Name}
		if err != nil {
			p.descs.DeviceReachable.WithLabelValues(labels...).Set(0)
			if herr := p.classify(err, "status poll failed"); herr != nil {
				return herr
			}
			continue
		}

		p.descs.DeviceReachable.WithLabelValues(labels...).Set(1)
		p.descs.DeviceOn.WithLabelValues(labels...).Set(boolToGauge(status.On))
		if status.Brightness != nil {
			p.descs.DeviceBrightness.WithLabelValues(labels...).Set(float64(*status.Brightness))
		}
	}

	p.log.Debug("poll sweep complete", "devices", len(devices), "duration", time.Since(start).String())
	return nil
}

// classify logs a poll failure and decides whether it halts the loop.
// Only credential-class failures do.
func (p *Poller) classify(err error, msg string) error {
	p.bm.IncPollErrors()
	if homecontrol.IsCredentialError(err) {
		p.log.Error(msg+", halting polling", "error", err.Error())
		return err
	}
	p.log.Warn(msg+", will retry on next interval", "error", err.Error())
	return nil
}

func boolToGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
