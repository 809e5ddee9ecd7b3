package checks

import "strings"

// Version suffixes of the infinite-loop test firmwares. Updating from an
// il2 build to an il0 build would offer the same update forever, so that
// path is reported as unavailable.
const (
	loopSourceSuffix = "-il2"
	loopTargetSuffix = "-il0"
)

// SuppressUpdate reports whether the update from info to fw must be
// treated as unavailable whatever the server says.
func SuppressUpdate(info *DeviceInfo, fw *Firmware) bool {
	if info == nil || fw == nil {
		return false
	}
	return strings.HasSuffix(info.Version, loopSourceSuffix) &&
		strings.HasSuffix(fw.FinalName(), loopTargetSuffix)
}

// FirmwareWatcher maps firmware availability results to status transitions.
type FirmwareWatcher struct {
	tracker *Tracker
}

// NewFirmwareWatcher returns a watcher advancing t.
func NewFirmwareWatcher(t *Tracker) *FirmwareWatcher {
	return &FirmwareWatcher{tracker: t}
}

// Observe applies a snapshot while the firmware check is active.
func (w *FirmwareWatcher) Observe(s FirmwareSnapshot) []Transition {
	if w.tracker.State().FirmwareUpdateStatus != StatusActive {
		return nil
	}

	suppress := SuppressUpdate(s.DeviceInfo, s.LatestFirmware)

	var to Status
	var version, reason string
	switch {
	case suppress && s.Status == AvailabilityAvailable:
		to, reason = StatusCompleted, "update_path_suppressed"
	case s.Status == AvailabilityNone:
		to, reason = StatusCompleted, "no_available_firmware"
	case s.Status == AvailabilityAvailable:
		to, reason = StatusUpdateAvailable, "available_firmware"
		version = s.LatestFirmware.FinalName()
	default:
		return nil
	}

	changed, err := w.tracker.SetFirmware(to, version)
	if err != nil || !changed {
		return nil
	}
	return []Transition{{Check: CheckFirmware, From: StatusActive, To: to, Reason: reason}}
}
