package checks

import (
	"testing"

	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestSelectDrawer_Priority(t *testing.T) {
	transport := errors.New("transport dropped")
	tests := []struct {
		name string
		in   DrawerInputs
		want DrawerKind
	}{
		{
			name: "locked device beats not genuine",
			in: DrawerInputs{
				State:        FlowState{GenuineCheckStatus: StatusNotGenuine, FirmwareUpdateStatus: StatusActive},
				LockedDevice: true,
			},
			want: DrawerLockedDevice,
		},
		{
			name: "secure channel request beats not genuine",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusNotGenuine, FirmwareUpdateStatus: StatusActive},
				Permission: PermissionRequested,
			},
			want: DrawerAllowSecureChannel,
		},
		{
			name: "not genuine once no check needs the secure channel",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusNotGenuine, FirmwareUpdateStatus: StatusInactive},
				Permission: PermissionRequested,
			},
			want: DrawerNotGenuine,
		},
		{
			name: "locked device beats secure channel request",
			in: DrawerInputs{
				State:        FlowState{GenuineCheckStatus: StatusCompleted, FirmwareUpdateStatus: StatusActive},
				Permission:   PermissionRequested,
				LockedDevice: true,
			},
			want: DrawerLockedDevice,
		},
		{
			name: "unlock needed while genuine check runs",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusActive, FirmwareUpdateStatus: StatusInactive},
				Permission: PermissionUnlockNeeded,
			},
			want: DrawerLockedDevice,
		},
		{
			name: "secure channel request with only firmware check active",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusCompleted, FirmwareUpdateStatus: StatusActive},
				Permission: PermissionRequested,
			},
			want: DrawerAllowSecureChannel,
		},
		{
			name: "secure channel request with no check active",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusCompleted, FirmwareUpdateStatus: StatusCompleted},
				Permission: PermissionRequested,
			},
			want: DrawerNone,
		},
		{
			name: "not genuine beats genuine check error",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusNotGenuine, FirmwareUpdateStatus: StatusInactive},
				GenuineErr: transport,
			},
			want: DrawerNotGenuine,
		},
		{
			name: "genuine check error while active",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusActive, FirmwareUpdateStatus: StatusInactive},
				GenuineErr: transport,
			},
			want: DrawerGenuineCheckError,
		},
		{
			name: "genuine check error after failure",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusFailed, FirmwareUpdateStatus: StatusInactive},
				GenuineErr: transport,
			},
			want: DrawerGenuineCheckError,
		},
		{
			name: "genuine check error ignored once completed",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusCompleted, FirmwareUpdateStatus: StatusActive},
				GenuineErr: transport,
			},
			want: DrawerNone,
		},
		{
			name: "genuine check error ignored before start",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusInactive, FirmwareUpdateStatus: StatusInactive},
				GenuineErr: transport,
			},
			want: DrawerNone,
		},
		{
			name: "none",
			in: DrawerInputs{
				State:      FlowState{GenuineCheckStatus: StatusActive, FirmwareUpdateStatus: StatusInactive},
				Permission: PermissionGranted,
			},
			want: DrawerNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectDrawer(tt.in))
		})
	}
}
