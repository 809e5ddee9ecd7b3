package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func state(genuine, firmware checks.Status) checks.FlowState {
	return checks.FlowState{GenuineCheckStatus: genuine, FirmwareUpdateStatus: firmware}
}

func TestAutopilot_UpdateThenContinue(t *testing.T) {
	a := newAutopilot(true, 2)

	assert.Equal(t, actNone, a.next(state(checks.StatusActive, checks.StatusInactive), checks.DrawerNone))
	assert.Equal(t, actStartUpdate, a.next(state(checks.StatusCompleted, checks.StatusUpdateAvailable), checks.DrawerNone))
	a.updateStarted()
	assert.Equal(t, actNone, a.next(state(checks.StatusCompleted, checks.StatusUpdateAvailable), checks.DrawerFirmwareUpdate))

	// After the update the checks run again and the device is up to date
	assert.Equal(t, actNone, a.next(state(checks.StatusActive, checks.StatusInactive), checks.DrawerNone))
	assert.Equal(t, actContinue, a.next(state(checks.StatusCompleted, checks.StatusCompleted), checks.DrawerNone))
	assert.Equal(t, actNone, a.next(state(checks.StatusCompleted, checks.StatusCompleted), checks.DrawerNone))
}

func TestAutopilot_UpdateBudget(t *testing.T) {
	a := newAutopilot(true, 2)
	a.updateStarted()
	assert.Equal(t, actContinue, a.next(state(checks.StatusCompleted, checks.StatusUpdateAvailable), checks.DrawerNone))
}

type failingUpdates struct{}

func (failingUpdates) Launch(ctx context.Context, req checks.UpdateRequest, done func(checks.UpdateOutcome)) error {
	return errors.New("wizard unavailable")
}

func TestAutopilot_LaunchFailureIsNotCountedAsUpdate(t *testing.T) {
	m := checks.NewMachine(context.Background(), checks.MachineConfig{
		Device:  checks.Device{DeviceID: "sim-1", ModelID: "nanoX"},
		Updates: failingUpdates{},
	})
	m.StartChecks()
	m.ObserveGenuine(checks.GenuineSnapshot{GenuineState: checks.GenuineOK, PermissionState: checks.PermissionGranted})
	m.ObserveFirmware(checks.FirmwareSnapshot{
		Status:         checks.AvailabilityAvailable,
		DeviceInfo:     &checks.DeviceInfo{Version: "1.0.0"},
		LatestFirmware: &checks.Firmware{Final: &checks.FinalFirmware{Name: "2.0.0"}},
	})
	require.Equal(t, checks.StatusUpdateAvailable, m.State().FirmwareUpdateStatus)

	a := newAutopilot(true, 2)
	act := a.next(m.State(), m.Drawer())
	require.Equal(t, actStartUpdate, act)
	a.apply(m, act)

	assert.Equal(t, 0, a.updates)
	assert.Equal(t, 1, a.failedRuns)
	assert.False(t, a.continued, "the checks restart instead of continuing")
	assert.Equal(t, checks.StatusActive, m.State().GenuineCheckStatus)

	// The next offer of the same update is declined
	assert.Equal(t, actContinue, a.next(state(checks.StatusCompleted, checks.StatusUpdateAvailable), checks.DrawerNone))
}

func TestAutopilot_NoAutoUpdate(t *testing.T) {
	a := newAutopilot(false, 2)
	assert.Equal(t, actContinue, a.next(state(checks.StatusCompleted, checks.StatusUpdateAvailable), checks.DrawerNone))
}

func TestAutopilot_GenuineRetries(t *testing.T) {
	a := newAutopilot(true, 1)

	assert.Equal(t, actRetryGenuine, a.next(state(checks.StatusFailed, checks.StatusInactive), checks.DrawerGenuineCheckError))
	assert.Equal(t, actNone, a.next(state(checks.StatusFailed, checks.StatusInactive), checks.DrawerGenuineCheckError), "retry already queued")
	assert.Equal(t, actNone, a.next(state(checks.StatusActive, checks.StatusInactive), checks.DrawerNone))
	assert.Equal(t, actFail, a.next(state(checks.StatusFailed, checks.StatusInactive), checks.DrawerGenuineCheckError))
	assert.Error(t, a.failure)
	assert.Equal(t, actNone, a.next(state(checks.StatusCompleted, checks.StatusCompleted), checks.DrawerNone))
}

func TestAutopilot_CancelledRestarts(t *testing.T) {
	a := newAutopilot(true, 1)
	assert.Equal(t, actStartChecks, a.next(state(checks.StatusCancelled, checks.StatusInactive), checks.DrawerNone))
	assert.Equal(t, actFail, a.next(state(checks.StatusCancelled, checks.StatusInactive), checks.DrawerNone))
}

func TestAutopilot_NotGenuine(t *testing.T) {
	a := newAutopilot(true, 3)
	assert.Equal(t, actFail, a.next(state(checks.StatusNotGenuine, checks.StatusInactive), checks.DrawerNotGenuine))
	assert.ErrorIs(t, a.failure, ErrNotGenuine)
}

func TestTerminalDrawers(t *testing.T) {
	var buf bytes.Buffer
	d := &terminalDrawers{out: &buf}

	d.Open(checks.Drawer{Kind: checks.DrawerAllowSecureChannel, Props: checks.DrawerProps{ProductName: "Nano X"}})
	assert.Equal(t, checks.DrawerAllowSecureChannel, d.Current())
	assert.Contains(t, buf.String(), "Allow the secure connection on your Nano X")
	assert.NotContains(t, buf.String(), colorReset)

	d.Close()
	assert.Equal(t, checks.DrawerNone, d.Current())
}
