package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/hwonboard/earlychecks/pkg/errors"
)

// ErrDeviceLocked is returned by a DeviceInfoSource while the device is
// locked and cannot report its firmware.
var ErrDeviceLocked = errors.New("device locked")

// DeviceReport is what a device says about itself
type DeviceReport struct {
	ModelID string
	Info    checks.DeviceInfo
}

// DeviceInfoSource queries a connected device
type DeviceInfoSource interface {
	DeviceInfo(ctx context.Context, deviceID string) (DeviceReport, error)
}

// Provider answers latest firmware queries from a catalog. It polls the
// device until it reports its firmware version, then publishes the result.
type Provider struct {
	catalog  *Catalog
	source   DeviceInfoSource
	interval time.Duration
	logger   *slog.Logger
}

// NewProvider returns a provider polling source every interval
func NewProvider(c *Catalog, source DeviceInfoSource, interval time.Duration, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Provider{catalog: c, source: source, interval: interval, logger: logger}
}

// SubscribeLatestFirmware starts a query; cancelling the stream stops it.
func (p *Provider) SubscribeLatestFirmware(ctx context.Context, deviceID string) (checks.Stream[checks.FirmwareSnapshot], error) {
	ctx, cancel := context.WithCancel(ctx)
	stream := checks.NewChanStream[checks.FirmwareSnapshot](cancel)
	go p.poll(ctx, deviceID, stream)
	return stream, nil
}

func (p *Provider) poll(ctx context.Context, deviceID string, stream *checks.ChanStream[checks.FirmwareSnapshot]) {
	logger := p.logger.With("device_id", deviceID)
	logger.Info("firmware_query_started")

	if !stream.Publish(checks.FirmwareSnapshot{Status: checks.AvailabilityChecking}) {
		return
	}

	for attempt := 1; ; attempt++ {
		snap, done := p.query(ctx, logger, deviceID)
		if ctx.Err() != nil {
			return
		}
		if !stream.Publish(snap) {
			return
		}
		if done {
			logger.Info("firmware_query_complete", "status", snap.Status, "attempts", attempt)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

func (p *Provider) query(ctx context.Context, logger *slog.Logger, deviceID string) (checks.FirmwareSnapshot, bool) {
	report, err := p.source.DeviceInfo(ctx, deviceID)
	switch {
	case errors.Is(err, ErrDeviceLocked):
		logger.Info("firmware_query_device_locked")
		return checks.FirmwareSnapshot{Status: checks.AvailabilityChecking, LockedDevice: true}, false
	case err != nil:
		logger.Warn("firmware_query_failed", "error", err)
		return checks.FirmwareSnapshot{Status: checks.AvailabilityError}, false
	}

	info := report.Info
	snap := checks.FirmwareSnapshot{DeviceInfo: &info}
	if fw, ok := p.catalog.Latest(report.ModelID, info); ok {
		snap.Status = checks.AvailabilityAvailable
		snap.LatestFirmware = fw
		logger.Info("firmware_available", "model_id", report.ModelID, "current", info.Version, "latest", fw.FinalName())
	} else {
		snap.Status = checks.AvailabilityNone
		logger.Info("firmware_up_to_date", "model_id", report.ModelID, "current", info.Version)
	}
	return snap, true
}
