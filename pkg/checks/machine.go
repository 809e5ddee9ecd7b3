// Package checks implements the early security checks of device onboarding:
// a genuine check followed by a firmware update check, with at most one
// blocking drawer shown to the user at a time.
package checks

import (
	"context"
	"log/slog"
	"time"

	"github.com/hwonboard/earlychecks/pkg/errors"
)

// MachineConfig holds the collaborators of a Machine.
type MachineConfig struct {
	SessionID string
	Device    Device

	Genuine  GenuineCheckProvider
	Drawers  DrawerHost
	Updates  UpdateHost
	Recorder Recorder
	Logger   *slog.Logger

	// OnComplete runs when the user continues to the device setup.
	OnComplete func()

	// Dispatch runs callbacks coming from drawers and the update host on
	// the machine's goroutine. Defaults to calling them directly.
	Dispatch func(func())
}

// Machine is the early security checks state machine. It is not safe for
// concurrent use; Session serializes access to it.
type Machine struct {
	ctx    context.Context
	cfg    MachineConfig
	logger *slog.Logger

	tracker   *Tracker
	genuineW  *GenuineWatcher
	firmwareW *FirmwareWatcher
	presenter *Presenter

	genuine  GenuineSnapshot
	firmware FirmwareSnapshot

	updating     bool
	cancelUpdate context.CancelFunc
	completed    bool
	unmounted    bool
}

// NewMachine returns a machine with both checks inactive.
func NewMachine(ctx context.Context, cfg MachineConfig) *Machine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", cfg.SessionID, "device_id", cfg.Device.DeviceID)
	if cfg.Dispatch == nil {
		cfg.Dispatch = func(f func()) { f() }
	}
	if cfg.Drawers == nil {
		cfg.Drawers = nopDrawerHost{}
	}

	t := NewTracker()
	return &Machine{
		ctx:       ctx,
		cfg:       cfg,
		logger:    logger,
		tracker:   t,
		genuineW:  NewGenuineWatcher(t),
		firmwareW: NewFirmwareWatcher(t),
		presenter: NewPresenter(cfg.Drawers),
		genuine:   idleGenuineSnapshot(),
		firmware:  uncheckedFirmwareSnapshot(),
	}
}

// State returns the current flow state.
func (m *Machine) State() FlowState {
	return m.tracker.State()
}

// Drawer returns the drawer currently open.
func (m *Machine) Drawer() DrawerKind {
	return m.presenter.Current()
}

// Firmware returns the last firmware snapshot.
func (m *Machine) Firmware() FirmwareSnapshot {
	return m.firmware
}

// Updating reports whether the firmware update wizard is running.
func (m *Machine) Updating() bool {
	return m.updating
}

// ObserveGenuine applies the latest genuine check snapshot.
func (m *Machine) ObserveGenuine(s GenuineSnapshot) {
	if m.unmounted {
		return
	}
	if m.State().GenuineCheckStatus != StatusActive {
		m.logger.Debug("genuine_snapshot_ignored", "status", m.State().GenuineCheckStatus)
		return
	}
	m.genuine = s
	ts := m.genuineW.Observe(s)
	for _, t := range ts {
		if t.Check == CheckFirmware && t.To == StatusActive {
			m.firmware = uncheckedFirmwareSnapshot()
		}
	}
	// A result ends the check; an error arriving with it is stale.
	if m.State().GenuineCheckStatus != StatusActive {
		m.genuine.Err = nil
	}
	m.record(ts...)
	m.evaluate()
}

// ObserveFirmware applies the latest firmware availability snapshot.
func (m *Machine) ObserveFirmware(s FirmwareSnapshot) {
	if m.unmounted {
		return
	}
	m.firmware = s
	if s.Status == AvailabilityError && m.State().FirmwareUpdateStatus == StatusActive {
		m.logger.Warn("firmware_check_error_ignored")
	}
	m.record(m.firmwareW.Observe(s)...)
	m.evaluate()
}

// StartChecks arms the genuine check. It also resumes a cancelled check.
func (m *Machine) StartChecks() {
	m.activateGenuine("start_checks")
}

// RetryGenuineCheck clears the genuine check error and runs it again.
func (m *Machine) RetryGenuineCheck() {
	m.activateGenuine("retry")
}

func (m *Machine) activateGenuine(reason string) {
	if m.unmounted {
		return
	}
	m.resetGenuineProvider()
	from := m.State().GenuineCheckStatus
	changed, err := m.tracker.SetGenuine(StatusActive)
	if err != nil {
		m.logger.Warn("genuine_check_activation_rejected", "from", from, "reason", reason, "error", err)
	} else if changed {
		m.record(Transition{Check: CheckGenuine, From: from, To: StatusActive, Reason: reason})
	}
	m.evaluate()
}

// ResetAndRestartChecks clears everything and runs the genuine check again.
func (m *Machine) ResetAndRestartChecks() {
	if m.unmounted {
		return
	}
	m.resetGenuineProvider()
	m.firmware = uncheckedFirmwareSnapshot()

	before := m.State()
	m.tracker.Reset()
	after := m.State()

	if before.GenuineCheckStatus != after.GenuineCheckStatus {
		m.record(Transition{Check: CheckGenuine, From: before.GenuineCheckStatus, To: after.GenuineCheckStatus, Reason: "reset"})
	}
	if before.FirmwareUpdateStatus != after.FirmwareUpdateStatus {
		m.record(Transition{Check: CheckFirmware, From: before.FirmwareUpdateStatus, To: after.FirmwareUpdateStatus, Reason: "reset"})
	}
	m.logger.Info("checks_reset")
	m.evaluate()
}

// StartFirmwareUpdate opens the firmware update wizard for the last known
// device info and firmware. It returns false if either is unknown or the
// wizard could not be launched.
func (m *Machine) StartFirmwareUpdate() bool {
	if m.unmounted || m.updating {
		return false
	}
	req, ok := NewUpdateRequest(m.cfg.Device, m.firmware.DeviceInfo, m.firmware.LatestFirmware)
	if !ok {
		m.logger.Info("firmware_update_not_started", "reason", "missing_device_info_or_firmware")
		return false
	}

	m.updating = true
	d := Drawer{
		Kind:    DrawerFirmwareUpdate,
		Props:   m.drawerProps(),
		Options: commonDrawerOptions(true),
	}
	d.Props.Update = &req
	d.Props.OnRequestClose = func() {
		m.cfg.Dispatch(func() { m.finishUpdate(UpdateOutcome{}) })
	}
	m.presenter.Show(d)

	m.logger.Info("firmware_update_started",
		"firmware", req.Firmware.FinalName(),
		"mode", req.Mode,
		"step_id", req.StepID,
		"with_reset_step", req.WithResetStep)

	if m.cfg.Updates != nil {
		ctx, cancel := context.WithCancel(m.ctx)
		m.cancelUpdate = cancel
		err := m.cfg.Updates.Launch(ctx, req, func(o UpdateOutcome) {
			m.cfg.Dispatch(func() { m.finishUpdate(o) })
		})
		if err != nil {
			m.logger.Error("firmware_update_launch_failed", "error", err)
			m.finishUpdate(UpdateOutcome{Err: err})
			return false
		}
	}
	return true
}

func (m *Machine) finishUpdate(o UpdateOutcome) {
	if !m.updating || m.unmounted {
		return
	}
	m.updating = false
	if m.cancelUpdate != nil {
		m.cancelUpdate()
		m.cancelUpdate = nil
	}

	switch {
	case o.Err != nil && !errors.Is(o.Err, context.Canceled):
		m.logger.Warn("firmware_update_failed", "error", o.Err)
	case o.Completed:
		m.logger.Info("firmware_update_completed")
	default:
		m.logger.Info("firmware_update_cancelled")
	}

	if m.presenter.Current() == DrawerFirmwareUpdate {
		m.presenter.Hide()
	}
	m.ResetAndRestartChecks()
}

// ContinueToSetup hands control back to the owner. The completion callback
// runs at most once.
func (m *Machine) ContinueToSetup() {
	if m.completed || m.unmounted {
		return
	}
	m.completed = true
	m.logger.Info("continue_to_setup", "genuine", m.State().GenuineCheckStatus, "firmware", m.State().FirmwareUpdateStatus)
	if m.cfg.OnComplete != nil {
		m.cfg.OnComplete()
	}
}

// Unmount releases the drawer host and stops a running update.
func (m *Machine) Unmount() {
	if m.unmounted {
		return
	}
	m.unmounted = true
	if m.cancelUpdate != nil {
		m.cancelUpdate()
		m.cancelUpdate = nil
	}
	m.updating = false
	m.presenter.Release()
	m.logger.Info("checks_unmounted")
}

func (m *Machine) resetGenuineProvider() {
	if m.cfg.Genuine != nil {
		m.cfg.Genuine.ResetGenuineCheck()
	}
	m.genuine = idleGenuineSnapshot()
}

func (m *Machine) drawerProps() DrawerProps {
	return DrawerProps{
		DeviceModelID: m.cfg.Device.ModelID,
		ProductName:   ProductName(m.cfg.Device.ModelID),
	}
}

// evaluate picks the drawer for the current state and shows it.
func (m *Machine) evaluate() {
	in := DrawerInputs{
		State:        m.State(),
		Permission:   m.genuine.PermissionState,
		LockedDevice: m.firmware.LockedDevice,
		GenuineErr:   m.genuine.Err,
	}
	kind := SelectDrawer(in)

	switch kind {
	case DrawerNone:
		// The update wizard is closed by its own outcome.
		if m.presenter.Current() != DrawerFirmwareUpdate {
			m.presenter.Hide()
		}
		return
	case DrawerGenuineCheckError:
		from := in.State.GenuineCheckStatus
		if from == StatusActive {
			if changed, _ := m.tracker.SetGenuine(StatusFailed); changed {
				m.record(Transition{Check: CheckGenuine, From: from, To: StatusFailed, Reason: "genuine_check_error"})
			}
		}
	}

	d := Drawer{
		Kind:    kind,
		Props:   m.drawerProps(),
		Options: commonDrawerOptions(kind != DrawerAllowSecureChannel),
	}
	if kind == DrawerGenuineCheckError {
		d.Props.Err = m.genuine.Err
		d.Props.OnRetry = func() { m.cfg.Dispatch(m.RetryGenuineCheck) }
	}
	if m.presenter.Show(d) {
		m.logger.Info("drawer_opened", "drawer", kind)
	}
}

func (m *Machine) record(ts ...Transition) {
	for _, t := range ts {
		t.SessionID = m.cfg.SessionID
		t.DeviceID = m.cfg.Device.DeviceID
		t.At = time.Now().UTC()
		m.logger.Info("check_transition", "check", t.Check, "from", t.From, "to", t.To, "reason", t.Reason)
		if m.cfg.Recorder == nil {
			continue
		}
		if err := m.cfg.Recorder.RecordTransition(m.ctx, t); err != nil {
			m.logger.Error("transition_record_failed", "check", t.Check, "error", err)
		}
	}
}
