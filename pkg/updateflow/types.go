package updateflow

import (
	"github.com/hwonboard/earlychecks/pkg/checks"
)

// Request is the FSM input
type Request struct {
	UpdateID  string
	SessionID string
	Update    checks.UpdateRequest
}

// Response is the FSM output (accumulated across transitions)
type Response struct {
	// From Prepare
	Steps []string

	// From Disclaimer
	DisclaimerAccepted bool

	// From InstallOSU / InstallFinal
	OSUInstalled   bool
	FinalInstalled bool

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StatePrepare      = "prepare"
	StateDisclaimer   = "disclaimer"
	StateInstallOSU   = "install_osu"
	StateInstallFinal = "install_final"
	StateComplete     = "complete"
	StateFailed       = "failed"
)
