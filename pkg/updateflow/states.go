package updateflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/hwonboard/earlychecks/pkg/db"
	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/hwonboard/earlychecks/pkg/security"
	"github.com/superfly/fsm"
)

// ErrRefused is returned by an Installer when the user rejects the update on
// the device.
var ErrRefused = errors.New("update refused on device")

// Installer drives the device side of a firmware update
type Installer interface {
	ConfirmDisclaimer(ctx context.Context, deviceID string) error
	InstallOSU(ctx context.Context, deviceID, name string) error
	InstallFinal(ctx context.Context, deviceID, name string) error
}

// Store persists update runs; *db.Repository implements it
type Store interface {
	CreateUpdate(u *db.Update) error
	UpdateUpdateStatus(id, status string, attempts int, errorMessage string) error
	GetUpdate(id string) (*db.Update, error)
}

// Flow holds dependencies for FSM transitions
type Flow struct {
	store      Store
	installer  Installer
	validator  *security.Validator
	maxRetries int
}

// NewFlow creates a new update flow with dependencies
func NewFlow(store Store, installer Installer, validator *security.Validator, maxRetries int) *Flow {
	return &Flow{
		store:      store,
		installer:  installer,
		validator:  validator,
		maxRetries: maxRetries,
	}
}

// Plan lists the states that do work for req, in order
func Plan(req checks.UpdateRequest) []string {
	steps := []string{StatePrepare}
	if req.Mode != checks.UpdateModeInstall {
		steps = append(steps, StateDisclaimer)
	}
	if req.Firmware.OSU != nil {
		steps = append(steps, StateInstallOSU)
	}
	return append(steps, StateInstallFinal, StateComplete)
}

func attempts(ctx context.Context) int {
	return int(fsm.RetryFromContext(ctx)) + 1
}

// retriesExhausted reports whether a state already retried more than
// maxRetries times. The first attempt is not a retry.
func retriesExhausted(retryCount uint64, maxRetries int) bool {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retryCount > uint64(maxRetries)
}

// guard aborts the run once the retry budget is spent
func (f *Flow) guard(ctx context.Context, req *fsm.Request[Request, Response], state string) error {
	if retryCount := fsm.RetryFromContext(ctx); retriesExhausted(retryCount, f.maxRetries) {
		slog.Error("max_retries_exceeded", "update_id", req.Msg.UpdateID, "state", state, "max_retries", f.maxRetries)
		err := fmt.Errorf("max retries (%d) exceeded in %s", f.maxRetries, state)
		f.store.UpdateUpdateStatus(req.Msg.UpdateID, db.UpdateFailed, attempts(ctx), err.Error())
		return fsm.Abort(err)
	}
	return nil
}

// stop ends the run: refusals cancel it, anything else fails it
func (f *Flow) stop(ctx context.Context, req *fsm.Request[Request, Response], resp *Response, err error) error {
	status := db.UpdateFailed
	if errors.Is(err, ErrRefused) {
		status = db.UpdateCancelled
	}
	resp.Status = status
	resp.ErrorMessage = err.Error()
	if serr := f.store.UpdateUpdateStatus(req.Msg.UpdateID, status, attempts(ctx), err.Error()); serr != nil {
		slog.Error("status_update_failed", "update_id", req.Msg.UpdateID, "status", status, "error", serr)
	}
	return fsm.Abort(err)
}

func response(req *fsm.Request[Request, Response]) (*Response, error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	return resp, nil
}

// handlePrepare validates the request and marks the run as running
func (f *Flow) handlePrepare(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	u := req.Msg.Update
	slog.Info("fsm_state_prepare",
		"update_id", req.Msg.UpdateID,
		"device_id", u.Device.DeviceID,
		"firmware", u.Firmware.FinalName(),
		"step_id", u.StepID,
		"with_reset_step", u.WithResetStep)

	if err := f.guard(ctx, req, StatePrepare); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &Response{}
	}

	if f.validator != nil {
		if err := f.validator.ValidateFirmwareName(u.Firmware.FinalName()); err != nil {
			return nil, f.stop(ctx, req, resp, err)
		}
		if u.Firmware.OSU != nil {
			if err := f.validator.ValidateFirmwareName(u.Firmware.OSU.Name); err != nil {
				return nil, f.stop(ctx, req, resp, err)
			}
		}
	}

	if err := f.store.UpdateUpdateStatus(req.Msg.UpdateID, db.UpdateRunning, attempts(ctx), ""); err != nil {
		slog.Error("status_update_failed", "update_id", req.Msg.UpdateID, "status", db.UpdateRunning, "error", err)
		return nil, errors.Wrap(err, "failed to update status")
	}

	resp.Steps = Plan(u)
	if u.WithResetStep {
		slog.Info("reset_step_required", "update_id", req.Msg.UpdateID, "model_id", u.Device.ModelID, "version", u.DeviceInfo.Version)
	}

	return fsm.NewResponse(resp), nil
}

// handleDisclaimer waits for the user to accept the update on the device
func (f *Flow) handleDisclaimer(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	slog.Info("fsm_state_disclaimer", "update_id", req.Msg.UpdateID, "mode", req.Msg.Update.Mode)

	if err := f.guard(ctx, req, StateDisclaimer); err != nil {
		return nil, err
	}
	resp, err := response(req)
	if err != nil {
		return nil, err
	}

	if req.Msg.Update.Mode == checks.UpdateModeInstall {
		slog.Info("disclaimer_skipped", "update_id", req.Msg.UpdateID, "reason", "device_in_osu")
		return fsm.NewResponse(resp), nil
	}

	if err := f.installer.ConfirmDisclaimer(ctx, req.Msg.Update.Device.DeviceID); err != nil {
		if errors.Is(err, ErrRefused) {
			slog.Info("disclaimer_refused", "update_id", req.Msg.UpdateID)
			return nil, f.stop(ctx, req, resp, err)
		}
		slog.Error("disclaimer_failed", "update_id", req.Msg.UpdateID, "attempt", attempts(ctx), "error", err)
		return nil, errors.Wrap(err, "disclaimer confirmation failed")
	}

	resp.DisclaimerAccepted = true
	return fsm.NewResponse(resp), nil
}

// handleInstallOSU installs the updater image, if the release has one
func (f *Flow) handleInstallOSU(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	slog.Info("fsm_state_install_osu", "update_id", req.Msg.UpdateID)

	if err := f.guard(ctx, req, StateInstallOSU); err != nil {
		return nil, err
	}
	resp, err := response(req)
	if err != nil {
		return nil, err
	}

	osu := req.Msg.Update.Firmware.OSU
	if osu == nil || resp.OSUInstalled {
		slog.Info("osu_skipped", "update_id", req.Msg.UpdateID, "already_installed", resp.OSUInstalled)
		return fsm.NewResponse(resp), nil
	}

	if err := f.installer.InstallOSU(ctx, req.Msg.Update.Device.DeviceID, osu.Name); err != nil {
		if errors.Is(err, ErrRefused) {
			return nil, f.stop(ctx, req, resp, err)
		}
		slog.Error("osu_install_failed", "update_id", req.Msg.UpdateID, "osu", osu.Name, "attempt", attempts(ctx), "error", err)
		return nil, errors.Wrap(err, "osu install failed")
	}

	slog.Info("osu_installed", "update_id", req.Msg.UpdateID, "osu", osu.Name)
	resp.OSUInstalled = true
	return fsm.NewResponse(resp), nil
}

// handleInstallFinal installs the final firmware
func (f *Flow) handleInstallFinal(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	name := req.Msg.Update.Firmware.FinalName()
	slog.Info("fsm_state_install_final", "update_id", req.Msg.UpdateID, "firmware", name)

	if err := f.guard(ctx, req, StateInstallFinal); err != nil {
		return nil, err
	}
	resp, err := response(req)
	if err != nil {
		return nil, err
	}

	if err := f.installer.InstallFinal(ctx, req.Msg.Update.Device.DeviceID, name); err != nil {
		if errors.Is(err, ErrRefused) {
			return nil, f.stop(ctx, req, resp, err)
		}
		slog.Error("final_install_failed", "update_id", req.Msg.UpdateID, "firmware", name, "attempt", attempts(ctx), "error", err)
		return nil, errors.Wrap(err, "final firmware install failed")
	}

	resp.FinalInstalled = true
	return fsm.NewResponse(resp), nil
}

// handleComplete marks the run as completed
func (f *Flow) handleComplete(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	slog.Info("fsm_state_complete", "update_id", req.Msg.UpdateID)

	if err := f.guard(ctx, req, StateComplete); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &Response{}
	}

	if err := f.store.UpdateUpdateStatus(req.Msg.UpdateID, db.UpdateCompleted, attempts(ctx), ""); err != nil {
		slog.Error("status_update_failed", "update_id", req.Msg.UpdateID, "error", err)
		return nil, errors.Wrap(err, "failed to update status")
	}
	resp.Status = db.UpdateCompleted

	slog.Info("fsm_complete", "update_id", req.Msg.UpdateID, "firmware", req.Msg.Update.Firmware.FinalName())
	return fsm.NewResponse(resp), nil
}
