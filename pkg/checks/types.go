package checks

import "time"

// Device identifies the connected hardware device.
type Device struct {
	DeviceID string `json:"device_id"`
	ModelID  string `json:"model_id"`
}

// DeviceInfo describes the firmware currently running on the device.
type DeviceInfo struct {
	Version string `json:"version"`
	IsOSU   bool   `json:"is_osu"`
}

// FinalFirmware is the final build of a firmware release.
type FinalFirmware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// OSUFirmware is the operating-system-update package installed before the
// final build.
type OSUFirmware struct {
	Name string `json:"name"`
}

// Firmware is a candidate firmware for the connected device.
type Firmware struct {
	Version string         `json:"version"`
	Final   *FinalFirmware `json:"final,omitempty"`
	OSU     *OSUFirmware   `json:"osu,omitempty"`
}

// FinalName returns the final build name, or "" when absent.
func (f *Firmware) FinalName() string {
	if f == nil || f.Final == nil {
		return ""
	}
	return f.Final.Name
}

// GenuineSnapshot is the latest value of the genuine check stream.
type GenuineSnapshot struct {
	GenuineState    GenuineState
	PermissionState PermissionState
	Err             error
}

// FirmwareSnapshot is the latest value of the firmware availability stream.
type FirmwareSnapshot struct {
	Status         Availability
	DeviceInfo     *DeviceInfo
	LatestFirmware *Firmware
	LockedDevice   bool
}

func idleGenuineSnapshot() GenuineSnapshot {
	return GenuineSnapshot{GenuineState: GenuineUnchecked, PermissionState: PermissionIdle}
}

func uncheckedFirmwareSnapshot() FirmwareSnapshot {
	return FirmwareSnapshot{Status: AvailabilityUnchecked}
}

// Check names used in transitions
const (
	CheckGenuine  = "genuine"
	CheckFirmware = "firmware"
)

// Transition is one status change of a check.
type Transition struct {
	SessionID string
	DeviceID  string
	Check     string
	From      Status
	To        Status
	Reason    string
	At        time.Time
}
