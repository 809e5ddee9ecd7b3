package commands

import (
	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/hwonboard/earlychecks/pkg/errors"
)

// ErrNotGenuine ends a run whose device failed the genuine check
var ErrNotGenuine = errors.New("device is not genuine")

type action int

const (
	actNone action = iota
	actStartChecks
	actRetryGenuine
	actStartUpdate
	actContinue
	actFail
)

// autopilot plays the user of the checks flow. It only runs on the session
// goroutine.
type autopilot struct {
	autoUpdate bool
	maxRetries int
	maxUpdates int
	retries    int
	updates    int
	failedRuns int
	restarts   int
	retrying   bool
	continued  bool
	failure    error
}

func newAutopilot(autoUpdate bool, maxRetries int) *autopilot {
	return &autopilot{autoUpdate: autoUpdate, maxRetries: maxRetries, maxUpdates: 1}
}

// next decides what the user does for the current state and drawer
func (a *autopilot) next(st checks.FlowState, dr checks.DrawerKind) action {
	if a.continued || a.failure != nil {
		return actNone
	}

	switch st.GenuineCheckStatus {
	case checks.StatusNotGenuine:
		a.failure = ErrNotGenuine
		return actFail
	case checks.StatusCancelled:
		if a.restarts >= a.maxRetries {
			a.failure = errors.New("genuine check cancelled too many times")
			return actFail
		}
		a.restarts++
		return actStartChecks
	}

	if dr == checks.DrawerGenuineCheckError {
		if a.retrying {
			return actNone
		}
		if a.retries >= a.maxRetries {
			a.failure = errors.New("genuine check kept failing")
			return actFail
		}
		a.retries++
		a.retrying = true
		return actRetryGenuine
	}
	a.retrying = false

	if dr == checks.DrawerFirmwareUpdate {
		return actNone
	}

	if st.GenuineCheckStatus != checks.StatusCompleted {
		return actNone
	}
	switch st.FirmwareUpdateStatus {
	case checks.StatusUpdateAvailable:
		if a.autoUpdate && a.updates+a.failedRuns < a.maxUpdates {
			return actStartUpdate
		}
		a.continued = true
		return actContinue
	case checks.StatusCompleted, checks.StatusFailed, checks.StatusCancelled:
		a.continued = true
		return actContinue
	}
	return actNone
}

// updateStarted counts a wizard run that actually opened
func (a *autopilot) updateStarted() {
	a.updates++
}

// apply runs act against the machine
func (a *autopilot) apply(m *checks.Machine, act action) {
	switch act {
	case actStartChecks:
		m.StartChecks()
	case actRetryGenuine:
		m.RetryGenuineCheck()
	case actStartUpdate:
		if m.Updating() {
			return
		}
		if m.StartFirmwareUpdate() {
			a.updateStarted()
			return
		}
		if m.State().FirmwareUpdateStatus != checks.StatusUpdateAvailable {
			// The wizard failed to launch and the checks restarted
			a.failedRuns++
			return
		}
		a.continued = true
		m.ContinueToSetup()
	case actContinue:
		m.ContinueToSetup()
	}
}
