package checks

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hwonboard/earlychecks/pkg/errors"
)

// ErrSessionStopped is returned by Call once Run has returned.
var ErrSessionStopped = errors.New("session stopped")

const sessionQueueSize = 64

// maxSettleRounds bounds the OnChange calls made for a single event.
const maxSettleRounds = 16

// SessionConfig holds the collaborators of a Session.
type SessionConfig struct {
	// SessionID defaults to a random UUID.
	SessionID string
	Device    Device

	Genuine  GenuineCheckProvider
	Firmware FirmwareProvider
	Drawers  DrawerHost
	Updates  UpdateHost
	Recorder Recorder
	Logger   *slog.Logger

	OnComplete func()
	// OnChange runs on the session goroutine whenever the state or the
	// open drawer changes. It may act on m directly; calling Do or Call
	// from it is not allowed, the session goroutine drains that queue.
	OnChange func(m *Machine, st FlowState, dr DrawerKind)
}

// Session runs a Machine on a single goroutine. Provider snapshots, drawer
// callbacks and user actions are all handled by that goroutine.
type Session struct {
	id       string
	device   Device
	genuineP GenuineCheckProvider
	firmP    FirmwareProvider
	onChange func(*Machine, FlowState, DrawerKind)
	logger   *slog.Logger

	events  chan func()
	done    chan struct{}
	machine *Machine

	genuineStream  Stream[GenuineSnapshot]
	firmwareStream Stream[FirmwareSnapshot]

	lastState  FlowState
	lastDrawer DrawerKind
}

// NewSession builds a session. Nothing runs until Run is called.
func NewSession(ctx context.Context, cfg SessionConfig) *Session {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:       cfg.SessionID,
		device:   cfg.Device,
		genuineP: cfg.Genuine,
		firmP:    cfg.Firmware,
		onChange: cfg.OnChange,
		logger:   logger.With("session_id", cfg.SessionID, "device_id", cfg.Device.DeviceID),
		events:   make(chan func(), sessionQueueSize),
		done:     make(chan struct{}),
	}
	s.machine = NewMachine(ctx, MachineConfig{
		SessionID:  cfg.SessionID,
		Device:     cfg.Device,
		Genuine:    cfg.Genuine,
		Drawers:    cfg.Drawers,
		Updates:    cfg.Updates,
		Recorder:   cfg.Recorder,
		Logger:     logger,
		OnComplete: cfg.OnComplete,
		Dispatch:   s.post,
	})
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) post(f func()) {
	select {
	case s.events <- f:
	case <-s.done:
	}
}

// Do queues fn to run against the machine. It does not wait.
func (s *Session) Do(fn func(m *Machine)) {
	s.post(func() { fn(s.machine) })
}

// Call runs fn against the machine and waits for it to return.
func (s *Session) Call(ctx context.Context, fn func(m *Machine)) error {
	ran := make(chan struct{})
	select {
	case s.events <- func() { fn(s.machine); close(ran) }:
	case <-s.done:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled. On return every
// subscription is cancelled and the drawer host released.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("session_started", "model_id", s.device.ModelID)
	defer func() {
		s.cancelGenuine()
		s.cancelFirmware()
		s.machine.Unmount()
		close(s.done)
		s.logger.Info("session_stopped")
	}()

	s.lastState, s.lastDrawer = s.machine.State(), s.machine.Drawer()
	if err := s.syncSubscriptions(ctx); err != nil {
		return err
	}

	for {
		var genuineCh <-chan GenuineSnapshot
		if s.genuineStream != nil {
			genuineCh = s.genuineStream.Updates()
		}
		var firmwareCh <-chan FirmwareSnapshot
		if s.firmwareStream != nil {
			firmwareCh = s.firmwareStream.Updates()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-genuineCh:
			if !ok {
				s.genuineStream = nil
				break
			}
			s.machine.ObserveGenuine(snap)
		case snap, ok := <-firmwareCh:
			if !ok {
				s.firmwareStream = nil
				break
			}
			s.machine.ObserveFirmware(snap)
		case fn := <-s.events:
			fn()
		}

		if err := s.settle(ctx); err != nil {
			return err
		}
	}
}

// settle syncs subscriptions and reports changes until the machine stops
// changing. Changes made by OnChange itself are reported in the next round.
func (s *Session) settle(ctx context.Context) error {
	for round := 0; ; round++ {
		if err := s.syncSubscriptions(ctx); err != nil {
			return err
		}
		st, dr := s.machine.State(), s.machine.Drawer()
		if st == s.lastState && dr == s.lastDrawer {
			return nil
		}
		s.lastState, s.lastDrawer = st, dr
		if s.onChange == nil {
			continue
		}
		if round >= maxSettleRounds {
			s.logger.Warn("session_change_loop_stopped", "rounds", round)
			return nil
		}
		s.onChange(s.machine, st, dr)
	}
}

// syncSubscriptions keeps a provider subscribed exactly while its check is
// active.
func (s *Session) syncSubscriptions(ctx context.Context) error {
	st := s.machine.State()

	if st.GenuineCheckStatus == StatusActive {
		if s.genuineStream == nil && s.genuineP != nil {
			stream, err := s.genuineP.SubscribeGenuineCheck(ctx, s.device.DeviceID)
			if err != nil {
				return errors.Wrap(err, "genuine check subscription failed")
			}
			s.genuineStream = stream
			s.logger.Info("genuine_check_subscribed")
		}
	} else {
		s.cancelGenuine()
	}

	if st.FirmwareUpdateStatus == StatusActive {
		if s.firmwareStream == nil && s.firmP != nil {
			stream, err := s.firmP.SubscribeLatestFirmware(ctx, s.device.DeviceID)
			if err != nil {
				return errors.Wrap(err, "firmware subscription failed")
			}
			s.firmwareStream = stream
			s.logger.Info("firmware_check_subscribed")
		}
	} else {
		s.cancelFirmware()
	}
	return nil
}

func (s *Session) cancelGenuine() {
	if s.genuineStream != nil {
		s.genuineStream.Cancel()
		s.genuineStream = nil
		s.logger.Info("genuine_check_unsubscribed")
	}
}

func (s *Session) cancelFirmware() {
	if s.firmwareStream != nil {
		s.firmwareStream.Cancel()
		s.firmwareStream = nil
		s.logger.Info("firmware_check_unsubscribed")
	}
}
