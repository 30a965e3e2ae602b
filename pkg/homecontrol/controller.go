package homecontrol

import (
	"context"
	"fmt"

	"homecontrol-bridge/pkg/logger"
)

// Device is a controllable module together with the plant it belongs to.
type Device struct {
	PlantID string
	Module
}

// Controller exposes the device operations the host consumes. Command
// failures are surfaced to the immediate caller and never retried here;
// retry policy belongs to the caller.
type Controller struct {
	api   API
	allow map[string]bool
	log   *logger.Logger
}

// NewController creates a controller over the given API. allowList, when
// non-empty, restricts discovery to the listed module IDs.
func NewController(api API, allowList []string, log *logger.Logger) *Controller {
	var allow map[string]bool
	if len(allowList) > 0 {
		allow = make(map[string]bool, len(allowList))
		for _, id := range allowList {
			allow[id] = true
		}
	}
	return &Controller{api: api, allow: allow, log: log}
}

// TurnOn switches a device on.
func (c *Controller) TurnOn(ctx context.Context, moduleID string) error {
	return c.api.SetState(ctx, moduleID, true, nil)
}

// TurnOff switches a device off.
func (c *Controller) TurnOff(ctx context.Context, moduleID string) error {
	return c.api.SetState(ctx, moduleID, false, nil)
}

// SetBrightness sets a dimmer level. The level is clamped to [0, 100]
// before transmission; a clamped level of 0 is sent as state "off".
func (c *Controller) SetBrightness(ctx context.Context, moduleID string, level int) error {
	if level > 100 {
		level = 100
	}
	if level < 0 {
		level = 0
	}
	return c.api.SetState(ctx, moduleID, level > 0, &level)
}

// GetStatus reads the current on/brightness state of a device.
func (c *Controller) GetStatus(ctx context.Context, moduleID string) (Status, error) {
	return c.api.GetState(ctx, moduleID)
}

// DiscoverDevices walks all plants and returns their modules, filtered to
// the allow-list when one is configured.
func (c *Controller) DiscoverDevices(ctx context.Context) ([]Device, error) {
	plants, err := c.api.Plants(ctx)
	if err != nil {
		return nil, fmt.Errorf("device discovery failed: %w", err)
	}

	var devices []Device
	for _, plant := range plants {
		modules, err := c.api.Modules(ctx, plant.ID)
		if err != nil {
			return nil, fmt.Errorf("device discovery failed: %w", err)
		}
		for _, m := range modules {
			if c.allow != nil && !c.allow[m.ID] {
				continue
			}
			devices = append(devices, Device{PlantID: plant.ID, Module: m})
		}
	}

	c.log.Info("device discovery complete", "devices", len(devices))
	return devices, nil
}
