// Package updateflow runs the firmware update wizard as a durable
// superfly/fsm workflow: prepare, disclaimer, updater (OSU) install, final
// firmware install. Every run is recorded in the sessions database.
package updateflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/hwonboard/earlychecks/pkg/db"
	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/hwonboard/earlychecks/pkg/security"
	"github.com/superfly/fsm"
)

// Register registers the firmware update FSM
func (f *Flow) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[Request, Response], fsm.Resume, error) {
	start, resume, err := fsm.Register[Request, Response](manager, "firmware-update").
		Start(StatePrepare, f.handlePrepare).
		To(StateDisclaimer, f.handleDisclaimer).
		To(StateInstallOSU, f.handleInstallOSU).
		To(StateInstallFinal, f.handleInstallFinal).
		To(StateComplete, f.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// Config holds what a Host needs
type Config struct {
	DBPath     string
	MaxRetries int
	Store      Store
	Installer  Installer
	Validator  *security.Validator
	Logger     *slog.Logger
}

// Host launches firmware updates for check sessions
type Host struct {
	manager *fsm.Manager
	start   fsm.Start[Request, Response]
	store   Store
	logger  *slog.Logger
}

// NewHost starts the FSM manager and registers the update flow
func NewHost(ctx context.Context, cfg Config) (*Host, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.DBPath})
	if err != nil {
		return nil, errors.Wrap(err, "FSM manager failed")
	}

	flow := NewFlow(cfg.Store, cfg.Installer, cfg.Validator, cfg.MaxRetries)
	start, _, err := flow.Register(ctx, manager)
	if err != nil {
		manager.Shutdown(time.Second)
		return nil, errors.Wrap(err, "FSM register failed")
	}

	logger.Info("update_host_ready", "fsm_db_path", cfg.DBPath, "max_retries", cfg.MaxRetries)
	return &Host{manager: manager, start: start, store: cfg.Store, logger: logger}, nil
}

// Close stops the FSM manager
func (h *Host) Close() {
	h.manager.Shutdown(10 * time.Second)
}

// ForSession returns an UpdateHost recording runs under sessionID
func (h *Host) ForSession(sessionID string) checks.UpdateHost {
	return sessionHost{host: h, sessionID: sessionID}
}

type sessionHost struct {
	host      *Host
	sessionID string
}

func (s sessionHost) Launch(ctx context.Context, req checks.UpdateRequest, done func(checks.UpdateOutcome)) error {
	return s.host.launch(ctx, s.sessionID, req, done)
}

func (h *Host) launch(ctx context.Context, sessionID string, req checks.UpdateRequest, done func(checks.UpdateOutcome)) error {
	u := &db.Update{
		SessionID: sessionID,
		DeviceID:  req.Device.DeviceID,
		Firmware:  req.Firmware.FinalName(),
		Mode:      string(req.Mode),
		StepID:    req.StepID,
	}
	if err := h.store.CreateUpdate(u); err != nil {
		return errors.Wrap(err, "failed to record update")
	}

	logger := h.logger.With("update_id", u.ID, "session_id", sessionID, "device_id", req.Device.DeviceID)

	version, err := h.start(ctx, u.ID, fsm.NewRequest(&Request{
		UpdateID:  u.ID,
		SessionID: sessionID,
		Update:    req,
	}, &Response{}))
	if err != nil {
		h.store.UpdateUpdateStatus(u.ID, db.UpdateFailed, 0, err.Error())
		return errors.Wrap(err, "FSM start failed")
	}
	logger.Info("update_fsm_started", "version", version)

	go func() {
		waitErr := h.manager.Wait(ctx, version)
		rec, err := h.store.GetUpdate(u.ID)
		if err != nil {
			logger.Error("update_lookup_failed", "error", err)
		}
		outcome := outcomeFor(rec, waitErr)
		logger.Info("update_fsm_finished", "completed", outcome.Completed, "error", outcome.Err)
		done(outcome)
	}()
	return nil
}

// outcomeFor maps the recorded end state of a run to the wizard outcome
func outcomeFor(u *db.Update, waitErr error) checks.UpdateOutcome {
	status := ""
	if u != nil {
		status = u.Status
	}
	switch {
	case status == db.UpdateCompleted:
		return checks.UpdateOutcome{Completed: true}
	case status == db.UpdateCancelled:
		return checks.UpdateOutcome{}
	case waitErr != nil:
		return checks.UpdateOutcome{Err: waitErr}
	case status == db.UpdateFailed && u.ErrorMessage != "":
		return checks.UpdateOutcome{Err: errors.New(u.ErrorMessage)}
	}
	return checks.UpdateOutcome{Err: fmt.Errorf("update ended in status %q", status)}
}
