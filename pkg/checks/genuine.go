package checks

// GenuineWatcher maps genuine check results to status transitions.
type GenuineWatcher struct {
	tracker *Tracker
}

// NewGenuineWatcher returns a watcher advancing t.
func NewGenuineWatcher(t *Tracker) *GenuineWatcher {
	return &GenuineWatcher{tracker: t}
}

// genuineTarget picks the status requested by a snapshot. When several
// conditions hold, genuine beats non-genuine, which beats a refusal.
func genuineTarget(s GenuineSnapshot) (Status, string) {
	switch {
	case s.GenuineState == GenuineOK:
		return StatusCompleted, "device_genuine"
	case s.GenuineState == GenuineNot:
		return StatusNotGenuine, "device_not_genuine"
	case s.PermissionState == PermissionRefused:
		return StatusCancelled, "permission_refused"
	}
	return "", ""
}

// Observe applies a snapshot. Snapshots are ignored unless the genuine check
// is active. Errors are left to the drawer presenter.
func (w *GenuineWatcher) Observe(s GenuineSnapshot) []Transition {
	st := w.tracker.State()
	if st.GenuineCheckStatus != StatusActive {
		return nil
	}

	to, reason := genuineTarget(s)
	if to == "" {
		return nil
	}

	var out []Transition
	if changed, err := w.tracker.SetGenuine(to); err == nil && changed {
		out = append(out, Transition{Check: CheckGenuine, From: StatusActive, To: to, Reason: reason})
	}

	if to == StatusCompleted {
		from := w.tracker.State().FirmwareUpdateStatus
		if changed, err := w.tracker.SetFirmware(StatusActive, ""); err == nil && changed {
			out = append(out, Transition{Check: CheckFirmware, From: from, To: StatusActive, Reason: "genuine_check_completed"})
		}
	}
	return out
}
