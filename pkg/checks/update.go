package checks

import "context"

// UpdateMode is the entry point of the firmware update wizard.
type UpdateMode string

// Update modes
const (
	UpdateModeInstall    UpdateMode = "install"
	UpdateModeDisclaimer UpdateMode = "disclaimer"
)

// Initial wizard steps
const (
	StepResetDevice = "resetDevice"
	StepIDCheck     = "idCheck"
)

// UpdateRequest describes how the firmware update wizard is entered.
type UpdateRequest struct {
	Device              Device     `json:"device"`
	DeviceInfo          DeviceInfo `json:"device_info"`
	Firmware            Firmware   `json:"firmware"`
	Mode                UpdateMode `json:"mode"`
	StepID              string     `json:"step_id"`
	WithResetStep       bool       `json:"with_reset_step"`
	WithAppsToReinstall bool       `json:"with_apps_to_reinstall"`
}

// UpdateOutcome is reported once by the update host.
type UpdateOutcome struct {
	Completed bool
	Err       error
}

// UpdateHost runs the firmware update wizard.
// done must be called exactly once, from any goroutine.
type UpdateHost interface {
	Launch(ctx context.Context, req UpdateRequest, done func(UpdateOutcome)) error
}

// NewUpdateRequest builds the wizard entry for device. It returns false
// when the device info or the firmware is unknown.
func NewUpdateRequest(device Device, info *DeviceInfo, fw *Firmware) (UpdateRequest, bool) {
	if info == nil || fw == nil {
		return UpdateRequest{}, false
	}

	mode := UpdateModeDisclaimer
	if info.IsOSU {
		mode = UpdateModeInstall
	}

	withReset := NeedsLegacyResetInstructions(*info, device.ModelID)
	step := StepIDCheck
	if withReset {
		step = StepResetDevice
	}

	return UpdateRequest{
		Device:              device,
		DeviceInfo:          *info,
		Firmware:            *fw,
		Mode:                mode,
		StepID:              step,
		WithResetStep:       withReset,
		WithAppsToReinstall: false,
	}, true
}
