package checks

import "fmt"

// transitionTable lists the ordinary transitions of each check.
// Reset bypasses it.
var transitionTable = map[string]map[Status][]Status{
	CheckGenuine: {
		StatusInactive:  {StatusActive},
		StatusActive:    {StatusCompleted, StatusCancelled, StatusNotGenuine, StatusFailed},
		StatusCancelled: {StatusActive},
		StatusFailed:    {StatusActive},
	},
	CheckFirmware: {
		StatusInactive: {StatusActive},
		StatusActive:   {StatusCompleted, StatusUpdateAvailable},
	},
}

// ErrInvalidTransition is returned for a transition missing from the table.
type ErrInvalidTransition struct {
	Check    string
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Check, e.From, e.To)
}

func allowed(check string, from, to Status) bool {
	for _, s := range transitionTable[check][from] {
		if s == to {
			return true
		}
	}
	return false
}

// Tracker holds the flow state. It performs no I/O.
type Tracker struct {
	state FlowState
}

// NewTracker returns a tracker with both checks inactive.
func NewTracker() *Tracker {
	return &Tracker{state: FlowState{
		GenuineCheckStatus:   StatusInactive,
		FirmwareUpdateStatus: StatusInactive,
	}}
}

// State returns a copy of the current state.
func (t *Tracker) State() FlowState {
	return t.state
}

// Reset clears the state and re-arms the genuine check.
func (t *Tracker) Reset() {
	t.state = FlowState{
		GenuineCheckStatus:   StatusActive,
		FirmwareUpdateStatus: StatusInactive,
	}
}

// SetGenuine moves the genuine check to `to`. Setting the current value
// again is a no-op.
func (t *Tracker) SetGenuine(to Status) (changed bool, err error) {
	from := t.state.GenuineCheckStatus
	if from == to {
		return false, nil
	}
	if !allowed(CheckGenuine, from, to) {
		return false, &ErrInvalidTransition{Check: CheckGenuine, From: from, To: to}
	}
	t.state.GenuineCheckStatus = to
	return true, nil
}

// SetFirmware moves the firmware check to `to` and stores the available
// version alongside it.
func (t *Tracker) SetFirmware(to Status, version string) (changed bool, err error) {
	from := t.state.FirmwareUpdateStatus
	if from == to {
		changed = t.state.AvailableFirmwareVersion != version
		t.state.AvailableFirmwareVersion = version
		return changed, nil
	}
	if !allowed(CheckFirmware, from, to) {
		return false, &ErrInvalidTransition{Check: CheckFirmware, From: from, To: to}
	}
	t.state.FirmwareUpdateStatus = to
	t.state.AvailableFirmwareVersion = version
	return true, nil
}
