package checks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeGenuineTracker(t *testing.T) *Tracker {
	t.Helper()
	tr := NewTracker()
	_, err := tr.SetGenuine(StatusActive)
	require.NoError(t, err)
	return tr
}

func TestGenuineWatcher_Transitions(t *testing.T) {
	tests := []struct {
		name        string
		snapshot    GenuineSnapshot
		wantGenuine Status
		wantFw      Status
	}{
		{"refused", GenuineSnapshot{GenuineUnchecked, PermissionRefused, nil}, StatusCancelled, StatusInactive},
		{"non genuine", GenuineSnapshot{GenuineNot, PermissionGranted, nil}, StatusNotGenuine, StatusInactive},
		{"genuine arms firmware", GenuineSnapshot{GenuineOK, PermissionGranted, nil}, StatusCompleted, StatusActive},
		{"genuine wins over refusal", GenuineSnapshot{GenuineOK, PermissionRefused, nil}, StatusCompleted, StatusActive},
		{"non genuine wins over refusal", GenuineSnapshot{GenuineNot, PermissionRefused, nil}, StatusNotGenuine, StatusInactive},
		{"still checking", GenuineSnapshot{GenuineUnchecked, PermissionRequested, nil}, StatusActive, StatusInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := activeGenuineTracker(t)
			NewGenuineWatcher(tr).Observe(tt.snapshot)
			assert.Equal(t, tt.wantGenuine, tr.State().GenuineCheckStatus)
			assert.Equal(t, tt.wantFw, tr.State().FirmwareUpdateStatus)
		})
	}
}

func TestGenuineWatcher_IgnoresUpdatesWhenNotActive(t *testing.T) {
	tr := NewTracker()
	w := NewGenuineWatcher(tr)
	assert.Empty(t, w.Observe(GenuineSnapshot{GenuineState: GenuineOK}))
	assert.Equal(t, StatusInactive, tr.State().GenuineCheckStatus)
}

func TestGenuineWatcher_TerminalStatusesStick(t *testing.T) {
	snapshots := []GenuineSnapshot{
		{GenuineOK, PermissionGranted, nil},
		{GenuineNot, PermissionGranted, nil},
		{GenuineUnchecked, PermissionRefused, nil},
		{GenuineUnchecked, PermissionUnlockNeeded, nil},
	}
	for _, first := range snapshots[:3] {
		tr := activeGenuineTracker(t)
		w := NewGenuineWatcher(tr)
		w.Observe(first)
		reached := tr.State().GenuineCheckStatus
		require.True(t, reached.Terminal())

		for _, next := range snapshots {
			w.Observe(next)
			assert.Equal(t, reached, tr.State().GenuineCheckStatus)
			assert.True(t, tr.State().GenuineCheckStatus.Valid())
		}
	}
}

func activeFirmwareTracker(t *testing.T) *Tracker {
	t.Helper()
	tr := activeGenuineTracker(t)
	NewGenuineWatcher(tr).Observe(GenuineSnapshot{GenuineState: GenuineOK})
	require.Equal(t, StatusActive, tr.State().FirmwareUpdateStatus)
	return tr
}

func TestFirmwareWatcher_InfiniteLoopOverride(t *testing.T) {
	tr := activeFirmwareTracker(t)
	NewFirmwareWatcher(tr).Observe(FirmwareSnapshot{
		Status:         AvailabilityAvailable,
		DeviceInfo:     &DeviceInfo{Version: "1.0.0-il2"},
		LatestFirmware: &Firmware{Final: &FinalFirmware{Name: "1.0.1-il0"}},
	})
	assert.Equal(t, StatusCompleted, tr.State().FirmwareUpdateStatus)
	assert.Equal(t, "", tr.State().AvailableFirmwareVersion)
}

func TestFirmwareWatcher_UpdateAvailable(t *testing.T) {
	tr := activeFirmwareTracker(t)
	NewFirmwareWatcher(tr).Observe(FirmwareSnapshot{
		Status:         AvailabilityAvailable,
		DeviceInfo:     &DeviceInfo{Version: "1.0.0"},
		LatestFirmware: &Firmware{Final: &FinalFirmware{Name: "2.0.0"}},
	})
	assert.Equal(t, StatusUpdateAvailable, tr.State().FirmwareUpdateStatus)
	assert.Equal(t, "2.0.0", tr.State().AvailableFirmwareVersion)
}

func TestFirmwareWatcher_Cases(t *testing.T) {
	tests := []struct {
		name        string
		snapshot    FirmwareSnapshot
		wantStatus  Status
		wantVersion string
	}{
		{"no firmware", FirmwareSnapshot{Status: AvailabilityNone}, StatusCompleted, ""},
		{"available without final name", FirmwareSnapshot{Status: AvailabilityAvailable, LatestFirmware: &Firmware{}}, StatusUpdateAvailable, ""},
		{"il2 device with other target", FirmwareSnapshot{
			Status:         AvailabilityAvailable,
			DeviceInfo:     &DeviceInfo{Version: "1.0.0-il2"},
			LatestFirmware: &Firmware{Final: &FinalFirmware{Name: "1.0.1"}},
		}, StatusUpdateAvailable, "1.0.1"},
		{"il0 target from regular device", FirmwareSnapshot{
			Status:         AvailabilityAvailable,
			DeviceInfo:     &DeviceInfo{Version: "1.0.0"},
			LatestFirmware: &Firmware{Final: &FinalFirmware{Name: "1.0.1-il0"}},
		}, StatusUpdateAvailable, "1.0.1-il0"},
		{"checking", FirmwareSnapshot{Status: AvailabilityChecking}, StatusActive, ""},
		{"error is not surfaced", FirmwareSnapshot{Status: AvailabilityError}, StatusActive, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := activeFirmwareTracker(t)
			NewFirmwareWatcher(tr).Observe(tt.snapshot)
			assert.Equal(t, tt.wantStatus, tr.State().FirmwareUpdateStatus)
			assert.Equal(t, tt.wantVersion, tr.State().AvailableFirmwareVersion)
		})
	}
}

func TestFirmwareWatcher_IgnoresUpdatesWhenNotActive(t *testing.T) {
	tr := NewTracker()
	NewFirmwareWatcher(tr).Observe(FirmwareSnapshot{Status: AvailabilityNone})
	assert.Equal(t, StatusInactive, tr.State().FirmwareUpdateStatus)
}

func TestSuppressUpdate_NilSafe(t *testing.T) {
	assert.False(t, SuppressUpdate(nil, &Firmware{}))
	assert.False(t, SuppressUpdate(&DeviceInfo{Version: "1.0.0-il2"}, nil))
	assert.False(t, SuppressUpdate(&DeviceInfo{Version: "1.0.0-il2"}, &Firmware{}))
}
