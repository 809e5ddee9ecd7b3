package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hwonboard/earlychecks/pkg/catalog"
	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/hwonboard/earlychecks/pkg/updateflow"
)

// Device is a simulated device playing a Scenario
type Device struct {
	scenario *Scenario
	logger   *slog.Logger

	mu             sync.Mutex
	version        string
	isOSU          bool
	attempts       int
	polls          int
	failedInstalls int
}

// NewDevice powers on a simulated device
func NewDevice(s *Scenario, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		scenario: s,
		logger:   logger.With("device_id", s.Device.ID, "simulated", true),
		version:  s.Device.Version,
		isOSU:    s.Device.OSU,
	}
}

// Version returns the firmware the device currently runs
func (d *Device) Version() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (d *Device) checkID(deviceID string) error {
	if deviceID != d.scenario.Device.ID {
		return fmt.Errorf("unknown device %q", deviceID)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SubscribeGenuineCheck plays the next scripted genuine check attempt
func (d *Device) SubscribeGenuineCheck(ctx context.Context, deviceID string) (checks.Stream[checks.GenuineSnapshot], error) {
	if err := d.checkID(deviceID); err != nil {
		return nil, err
	}

	d.mu.Lock()
	attempts := d.scenario.Genuine.Attempts
	idx := d.attempts
	if idx >= len(attempts) {
		idx = len(attempts) - 1
	}
	d.attempts++
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stream := checks.NewChanStream[checks.GenuineSnapshot](cancel)
	steps := attempts[idx].Steps
	d.logger.Info("sim_genuine_check_started", "attempt", idx+1, "steps", len(steps))

	go func() {
		for i, st := range steps {
			delay, _ := parseDelay(st.After)
			if err := sleep(ctx, delay); err != nil {
				return
			}
			if !stream.Publish(st.snapshot()) {
				return
			}
			d.logger.Info("sim_genuine_step", "step", i+1, "permission", st.Permission, "result", st.Result, "error", st.Error)
		}
	}()
	return stream, nil
}

// ResetGenuineCheck is called before every genuine check run
func (d *Device) ResetGenuineCheck() {
	d.logger.Info("sim_genuine_check_reset")
}

// DeviceInfo answers a firmware query, locked or failing as scripted
func (d *Device) DeviceInfo(ctx context.Context, deviceID string) (catalog.DeviceReport, error) {
	if err := d.checkID(deviceID); err != nil {
		return catalog.DeviceReport{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.polls++

	script := d.scenario.Firmware
	switch {
	case d.polls <= script.LockedPolls:
		return catalog.DeviceReport{}, catalog.ErrDeviceLocked
	case d.polls <= script.LockedPolls+script.ErrorPolls:
		return catalog.DeviceReport{}, fmt.Errorf("simulated transport error (poll %d)", d.polls)
	}
	return catalog.DeviceReport{
		ModelID: d.scenario.Device.Model,
		Info:    checks.DeviceInfo{Version: d.version, IsOSU: d.isOSU},
	}, nil
}

func (d *Device) installDelay() time.Duration {
	delay, _ := parseDelay(d.scenario.Update.Duration)
	return delay
}

// transientFailure consumes one scripted install failure, if any are left
func (d *Device) transientFailure(step string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failedInstalls < d.scenario.Update.FailInstalls {
		d.failedInstalls++
		return fmt.Errorf("simulated %s failure %d", step, d.failedInstalls)
	}
	return nil
}

// ConfirmDisclaimer accepts or refuses the update on the device
func (d *Device) ConfirmDisclaimer(ctx context.Context, deviceID string) error {
	if err := d.checkID(deviceID); err != nil {
		return err
	}
	if err := sleep(ctx, d.installDelay()/4); err != nil {
		return err
	}
	if d.scenario.Update.RefuseDisclaimer {
		d.logger.Info("sim_disclaimer_refused")
		return updateflow.ErrRefused
	}
	d.logger.Info("sim_disclaimer_accepted")
	return nil
}

// InstallOSU boots the device into the updater
func (d *Device) InstallOSU(ctx context.Context, deviceID, name string) error {
	if err := d.checkID(deviceID); err != nil {
		return err
	}
	if err := sleep(ctx, d.installDelay()/2); err != nil {
		return err
	}
	if err := d.transientFailure("osu install"); err != nil {
		return err
	}

	d.mu.Lock()
	d.isOSU = true
	d.mu.Unlock()
	d.logger.Info("sim_osu_installed", "osu", name)
	return nil
}

// InstallFinal flashes the final firmware and leaves the updater
func (d *Device) InstallFinal(ctx context.Context, deviceID, name string) error {
	if err := d.checkID(deviceID); err != nil {
		return err
	}
	if err := sleep(ctx, d.installDelay()); err != nil {
		return err
	}
	if err := d.transientFailure("final install"); err != nil {
		return err
	}

	d.mu.Lock()
	d.version = name
	d.isOSU = false
	d.mu.Unlock()
	d.logger.Info("sim_firmware_installed", "firmware", name)
	return nil
}
