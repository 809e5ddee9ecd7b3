package checks

import (
	"context"
	"testing"

	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type machineFixture struct {
	m        *Machine
	host     *recordingHost
	genuine  *fakeGenuineProvider
	updates  *fakeUpdateHost
	recorder *memoryRecorder
}

func newMachineFixture(t *testing.T, modelID string) *machineFixture {
	t.Helper()
	f := &machineFixture{
		host:     &recordingHost{},
		genuine:  newFakeGenuineProvider(),
		updates:  &fakeUpdateHost{},
		recorder: &memoryRecorder{},
	}
	f.m = NewMachine(context.Background(), MachineConfig{
		SessionID: "session-1",
		Device:    Device{DeviceID: "device-1", ModelID: modelID},
		Genuine:   f.genuine,
		Drawers:   f.host,
		Updates:   f.updates,
		Recorder:  f.recorder,
	})
	return f
}

// passGenuine runs the genuine check to completion.
func (f *machineFixture) passGenuine(t *testing.T) {
	t.Helper()
	f.m.StartChecks()
	f.m.ObserveGenuine(GenuineSnapshot{GenuineState: GenuineOK, PermissionState: PermissionGranted})
	require.Equal(t, StatusCompleted, f.m.State().GenuineCheckStatus)
	require.Equal(t, StatusActive, f.m.State().FirmwareUpdateStatus)
}

func TestMachine_StartChecks(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	f.m.StartChecks()

	assert.Equal(t, StatusActive, f.m.State().GenuineCheckStatus)
	assert.Equal(t, StatusInactive, f.m.State().FirmwareUpdateStatus)
	assert.Equal(t, 1, f.genuine.Resets())
	assert.Empty(t, f.host.Opens())
}

func TestMachine_SecureChannelDrawerIsNotClosable(t *testing.T) {
	f := newMachineFixture(t, "stax")
	f.m.StartChecks()
	f.m.ObserveGenuine(GenuineSnapshot{PermissionState: PermissionRequested})

	require.Len(t, f.host.Opens(), 1)
	d := f.host.Last()
	assert.Equal(t, DrawerAllowSecureChannel, d.Kind)
	assert.Equal(t, "Stax", d.Props.ProductName)
	assert.False(t, d.Options.Closable)
	assert.True(t, d.Options.PreventBackdropClick)
	assert.True(t, d.Options.ForceDisableFocusTrap)

	f.m.ObserveGenuine(GenuineSnapshot{GenuineState: GenuineOK, PermissionState: PermissionGranted})
	assert.Equal(t, DrawerNone, f.m.Drawer())
	assert.Equal(t, 1, f.host.Closes())
}

func TestMachine_SameDrawerIsOpenedOnce(t *testing.T) {
	f := newMachineFixture(t, "nanoS")
	f.m.StartChecks()
	locked := GenuineSnapshot{PermissionState: PermissionUnlockNeeded}
	f.m.ObserveGenuine(locked)
	f.m.ObserveGenuine(locked)
	f.m.ObserveGenuine(locked)

	assert.Len(t, f.host.Opens(), 1)
	assert.Equal(t, 0, f.host.Closes())
	assert.Equal(t, DrawerLockedDevice, f.m.Drawer())
}

func TestMachine_DrawerSwitchClosesPrevious(t *testing.T) {
	f := newMachineFixture(t, "nanoS")
	f.m.StartChecks()
	f.m.ObserveGenuine(GenuineSnapshot{PermissionState: PermissionUnlockNeeded})
	f.m.ObserveGenuine(GenuineSnapshot{PermissionState: PermissionRequested})
	f.m.ObserveGenuine(GenuineSnapshot{GenuineState: GenuineNot, PermissionState: PermissionGranted})

	opens := f.host.Opens()
	require.Len(t, opens, 3)
	assert.Equal(t, DrawerLockedDevice, opens[0].Kind)
	assert.Equal(t, DrawerAllowSecureChannel, opens[1].Kind)
	assert.Equal(t, DrawerNotGenuine, opens[2].Kind)
	assert.Equal(t, 2, f.host.Closes())
	assert.Equal(t, StatusNotGenuine, f.m.State().GenuineCheckStatus)
}

func TestMachine_GenuineErrorAndRetry(t *testing.T) {
	f := newMachineFixture(t, "nanoSP")
	f.m.StartChecks()
	f.m.ObserveGenuine(GenuineSnapshot{Err: errors.New("transport dropped")})

	assert.Equal(t, StatusFailed, f.m.State().GenuineCheckStatus)
	d := f.host.Last()
	require.Equal(t, DrawerGenuineCheckError, d.Kind)
	require.NotNil(t, d.Props.OnRetry)
	assert.EqualError(t, d.Props.Err, "transport dropped")

	d.Props.OnRetry()

	assert.Equal(t, StatusActive, f.m.State().GenuineCheckStatus)
	assert.Equal(t, 2, f.genuine.Resets())
	assert.Equal(t, DrawerNone, f.m.Drawer())
	assert.Equal(t, 1, f.host.Closes())

	f.m.ObserveGenuine(GenuineSnapshot{GenuineState: GenuineOK, PermissionState: PermissionGranted})
	assert.Equal(t, StatusCompleted, f.m.State().GenuineCheckStatus)
	assert.Equal(t, StatusActive, f.m.State().FirmwareUpdateStatus)
}

func TestMachine_GenuineErrorWithResultIsIgnored(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	f.m.StartChecks()
	f.m.ObserveGenuine(GenuineSnapshot{
		GenuineState:    GenuineOK,
		PermissionState: PermissionGranted,
		Err:             errors.New("late transport error"),
	})

	assert.Equal(t, StatusCompleted, f.m.State().GenuineCheckStatus)
	assert.Equal(t, StatusActive, f.m.State().FirmwareUpdateStatus)
	assert.Equal(t, DrawerNone, f.m.Drawer())
	assert.Empty(t, f.host.Opens())

	// Later snapshots of a finished check change nothing
	f.m.ObserveGenuine(GenuineSnapshot{Err: errors.New("late transport error")})
	assert.Equal(t, StatusCompleted, f.m.State().GenuineCheckStatus)
	assert.Equal(t, DrawerNone, f.m.Drawer())
	assert.Empty(t, f.host.Opens())
}

func TestMachine_GenuineSnapshotIgnoredWhenInactive(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	f.m.ObserveGenuine(GenuineSnapshot{
		GenuineState:    GenuineUnchecked,
		PermissionState: PermissionIdle,
		Err:             errors.New("stale"),
	})

	assert.Equal(t, StatusInactive, f.m.State().GenuineCheckStatus)
	assert.Equal(t, StatusInactive, f.m.State().FirmwareUpdateStatus)
	assert.Equal(t, DrawerNone, f.m.Drawer())
	assert.Empty(t, f.host.Opens())
	assert.Empty(t, f.recorder.transitions)

	// The check still runs normally once started
	f.m.StartChecks()
	f.m.ObserveGenuine(GenuineSnapshot{Err: errors.New("transport dropped")})
	assert.Equal(t, StatusFailed, f.m.State().GenuineCheckStatus)
	assert.Equal(t, DrawerGenuineCheckError, f.m.Drawer())
}

func TestMachine_ResumeAfterRefusal(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	f.m.StartChecks()
	f.m.ObserveGenuine(GenuineSnapshot{PermissionState: PermissionRefused})
	require.Equal(t, StatusCancelled, f.m.State().GenuineCheckStatus)

	f.m.StartChecks()
	assert.Equal(t, StatusActive, f.m.State().GenuineCheckStatus)
}

func TestMachine_LockedDeviceDuringFirmwareCheck(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	f.passGenuine(t)

	f.m.ObserveFirmware(FirmwareSnapshot{Status: AvailabilityChecking, LockedDevice: true})
	assert.Equal(t, DrawerLockedDevice, f.m.Drawer())

	f.m.ObserveFirmware(FirmwareSnapshot{Status: AvailabilityNone})
	assert.Equal(t, DrawerNone, f.m.Drawer())
	assert.Equal(t, StatusCompleted, f.m.State().FirmwareUpdateStatus)
}

func TestMachine_FirmwareUpdateRoundTrip(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	f.passGenuine(t)
	f.m.ObserveFirmware(FirmwareSnapshot{
		Status:         AvailabilityAvailable,
		DeviceInfo:     &DeviceInfo{Version: "1.0.0"},
		LatestFirmware: &Firmware{Version: "2.0.0", Final: &FinalFirmware{Name: "2.0.0"}},
	})
	require.Equal(t, StatusUpdateAvailable, f.m.State().FirmwareUpdateStatus)
	require.Equal(t, "2.0.0", f.m.State().AvailableFirmwareVersion)

	require.True(t, f.m.StartFirmwareUpdate())
	assert.True(t, f.m.Updating())
	assert.False(t, f.m.StartFirmwareUpdate(), "second launch while updating")

	require.Len(t, f.updates.requests, 1)
	req := f.updates.requests[0]
	assert.Equal(t, UpdateModeDisclaimer, req.Mode)
	assert.Equal(t, StepIDCheck, req.StepID)
	assert.False(t, req.WithResetStep)
	assert.False(t, req.WithAppsToReinstall)

	d := f.host.Last()
	assert.Equal(t, DrawerFirmwareUpdate, d.Kind)
	assert.True(t, d.Options.Closable)
	require.NotNil(t, d.Props.Update)

	f.updates.done(UpdateOutcome{Completed: true})

	assert.False(t, f.m.Updating())
	assert.Equal(t, DrawerNone, f.m.Drawer())
	assert.Equal(t, FlowState{
		GenuineCheckStatus:   StatusActive,
		FirmwareUpdateStatus: StatusInactive,
	}, f.m.State())
	assert.False(t, f.m.StartFirmwareUpdate(), "firmware snapshot cleared by reset")
}

func TestMachine_UpdateDrawerSurvivesNoneDecision(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	f.passGenuine(t)
	f.m.ObserveFirmware(FirmwareSnapshot{
		Status:         AvailabilityAvailable,
		DeviceInfo:     &DeviceInfo{Version: "1.0.0"},
		LatestFirmware: &Firmware{Final: &FinalFirmware{Name: "2.0.0"}},
	})
	require.True(t, f.m.StartFirmwareUpdate())

	f.m.ObserveFirmware(FirmwareSnapshot{Status: AvailabilityChecking})
	assert.Equal(t, DrawerFirmwareUpdate, f.m.Drawer())

	f.host.Last().Props.OnRequestClose()
	assert.Equal(t, DrawerNone, f.m.Drawer())
	assert.Equal(t, StatusActive, f.m.State().GenuineCheckStatus)
}

func TestMachine_UpdateLaunchFailureResets(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	f.updates.err = errors.New("wizard unavailable")
	f.passGenuine(t)
	f.m.ObserveFirmware(FirmwareSnapshot{
		Status:         AvailabilityAvailable,
		DeviceInfo:     &DeviceInfo{Version: "1.0.0"},
		LatestFirmware: &Firmware{Final: &FinalFirmware{Name: "2.0.0"}},
	})

	assert.False(t, f.m.StartFirmwareUpdate())
	assert.False(t, f.m.Updating())
	assert.Equal(t, DrawerNone, f.m.Drawer())
	assert.Equal(t, StatusActive, f.m.State().GenuineCheckStatus)
	assert.Equal(t, StatusInactive, f.m.State().FirmwareUpdateStatus)
}

func TestMachine_StartFirmwareUpdateWithoutInfo(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	assert.False(t, f.m.StartFirmwareUpdate())
	assert.Empty(t, f.host.Opens())
	assert.Empty(t, f.updates.requests)

	f.passGenuine(t)
	f.m.ObserveFirmware(FirmwareSnapshot{Status: AvailabilityAvailable, LatestFirmware: &Firmware{}})
	assert.False(t, f.m.StartFirmwareUpdate())
	assert.Empty(t, f.host.Opens())
}

func TestMachine_UnmountClosesExactlyOnce(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	f.m.StartChecks()
	f.m.ObserveGenuine(GenuineSnapshot{PermissionState: PermissionUnlockNeeded})
	require.Equal(t, 0, f.host.Closes())

	f.m.Unmount()
	f.m.Unmount()
	assert.Equal(t, 1, f.host.Closes())

	f.m.ObserveGenuine(GenuineSnapshot{PermissionState: PermissionRequested})
	assert.Len(t, f.host.Opens(), 1)
}

func TestMachine_ContinueToSetupRunsOnce(t *testing.T) {
	calls := 0
	m := NewMachine(context.Background(), MachineConfig{OnComplete: func() { calls++ }})
	m.ContinueToSetup()
	m.ContinueToSetup()
	assert.Equal(t, 1, calls)
}

func TestMachine_RecordsTransitions(t *testing.T) {
	f := newMachineFixture(t, "nanoX")
	f.passGenuine(t)
	f.m.ResetAndRestartChecks()

	var got []string
	for _, tr := range f.recorder.transitions {
		assert.Equal(t, "session-1", tr.SessionID)
		assert.Equal(t, "device-1", tr.DeviceID)
		assert.False(t, tr.At.IsZero())
		got = append(got, tr.Check+":"+string(tr.From)+"->"+string(tr.To))
	}
	assert.Equal(t, []string{
		"genuine:inactive->active",
		"genuine:active->completed",
		"firmware:inactive->active",
		"genuine:completed->active",
		"firmware:active->inactive",
	}, got)
}

func TestNewUpdateRequest(t *testing.T) {
	fw := &Firmware{Final: &FinalFirmware{Name: "2.1.1"}}
	tests := []struct {
		name      string
		modelID   string
		info      DeviceInfo
		wantMode  UpdateMode
		wantStep  string
		wantReset bool
	}{
		{"regular device", "nanoX", DeviceInfo{Version: "2.0.0"}, UpdateModeDisclaimer, StepIDCheck, false},
		{"device in osu", "nanoX", DeviceInfo{Version: "2.0.0-osu", IsOSU: true}, UpdateModeInstall, StepIDCheck, false},
		{"old blue", ModelBlue, DeviceInfo{Version: "2.1.0"}, UpdateModeDisclaimer, StepResetDevice, true},
		{"recent blue", ModelBlue, DeviceInfo{Version: "2.1.1"}, UpdateModeDisclaimer, StepIDCheck, false},
		{"unparseable blue", ModelBlue, DeviceInfo{Version: "garbage"}, UpdateModeDisclaimer, StepIDCheck, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.info
			req, ok := NewUpdateRequest(Device{DeviceID: "d", ModelID: tt.modelID}, &info, fw)
			require.True(t, ok)
			assert.Equal(t, tt.wantMode, req.Mode)
			assert.Equal(t, tt.wantStep, req.StepID)
			assert.Equal(t, tt.wantReset, req.WithResetStep)
		})
	}

	_, ok := NewUpdateRequest(Device{}, nil, fw)
	assert.False(t, ok)
}

func TestCanonicalVersion(t *testing.T) {
	assert.Equal(t, "v2.1.0-il2", CanonicalVersion("2.1.0-il2"))
	assert.Equal(t, "v1.0.0", CanonicalVersion(" v1.0.0 "))
	assert.Equal(t, "", CanonicalVersion(""))
	assert.Equal(t, "", CanonicalVersion("latest"))
	assert.Equal(t, "Flex", ProductName("europa"))
	assert.Equal(t, "prototype", ProductName("prototype"))
}
