package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricDescriptors holds the Prometheus descriptors for device state
// observed by the polling loop.
type MetricDescriptors struct {
	// Module-level metrics (with labels: plant_id, module_id, module_name)
	DeviceOn         prometheus.GaugeVec
	DeviceBrightness prometheus.GaugeVec
	DeviceReachable  prometheus.GaugeVec
}

var moduleLabels = []string{"plant_id", "module_id", "module_name"}

// NewMetricDescriptors creates the device-state metrics and registers them
// with the given registerer.
func NewMetricDescriptors(reg prometheus.Registerer) (*MetricDescriptors, error) {
	md := &MetricDescriptors{
		DeviceOn: *prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "homecontrol_device_on",
				Help: "Whether the device is on (1 = on, 0 = off)",
			},
			moduleLabels,
		),

		DeviceBrightness: *prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "homecontrol_device_brightness_percentage",
				Help: "Device brightness as a percentage (0-100%), dimmers only",
			},
			moduleLabels,
		),

		DeviceReachable: *prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "homecontrol_device_reachable",
				Help: "Whether the device answered its last status poll (1 = reachable, 0 = unreachable)",
			},
			moduleLabels,
		),
	}

	if err := reg.Register(&md.DeviceOn); err != nil {
		return nil, err
	}
	if err := reg.Register(&md.DeviceBrightness); err != nil {
		return nil, err
	}
	if err := reg.Register(&md.DeviceReachable); err != nil {
		return nil, err
	}

	return md, nil
}

// Reset clears all metric values (useful for testing)
func (md *MetricDescriptors) Reset() {
	md.DeviceOn.Reset()
	md.DeviceBrightness.Reset()
	md.DeviceReachable.Reset()
}
