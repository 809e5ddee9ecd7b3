package checks

// Status is the progress of one security check.
type Status string

// Check statuses
const (
	StatusInactive        Status = "inactive"
	StatusActive          Status = "active"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusFailed          Status = "failed"
	StatusNotGenuine      Status = "notGenuine"
	StatusUpdateAvailable Status = "updateAvailable"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusCompleted, StatusCancelled,
		StatusFailed, StatusNotGenuine, StatusUpdateAvailable:
		return true
	}
	return false
}

// Terminal reports whether s ends the check for the current session.
// StatusUpdateAvailable is not terminal: it waits for the user.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed, StatusNotGenuine:
		return true
	}
	return false
}

// PermissionState reflects whether the device needs unlocking or an
// approval of the secure channel.
type PermissionState string

// Device permission states
const (
	PermissionUnlockNeeded PermissionState = "unlock-needed"
	PermissionRequested    PermissionState = "requested"
	PermissionRefused      PermissionState = "refused"
	PermissionGranted      PermissionState = "granted"
	PermissionIdle         PermissionState = "idle"
)

// GenuineState is the result reported by the genuine check provider.
type GenuineState string

// Genuine states
const (
	GenuineUnchecked GenuineState = "unchecked"
	GenuineOK        GenuineState = "genuine"
	GenuineNot       GenuineState = "non-genuine"
)

// Availability is the result reported by the firmware provider.
type Availability string

// Firmware availability values
const (
	AvailabilityUnchecked Availability = "unchecked"
	AvailabilityChecking  Availability = "checking"
	AvailabilityAvailable Availability = "available-firmware"
	AvailabilityNone      Availability = "no-available-firmware"
	AvailabilityError     Availability = "error"
)

// FlowState is the state owned by the early security checks flow.
type FlowState struct {
	GenuineCheckStatus       Status
	FirmwareUpdateStatus     Status
	AvailableFirmwareVersion string
}
