// Package simulator plays a scripted device described by a TOML scenario.
// It stands in for a real transport behind the genuine check, the device
// info queries and the firmware installer.
package simulator

import (
	"fmt"
	"os"
	"time"

	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/pelletier/go-toml"
)

// Scenario is the TOML document driving a simulated device
type Scenario struct {
	Name     string       `toml:"name"`
	Device   DeviceSpec   `toml:"device"`
	Genuine  GenuineSpec  `toml:"genuine"`
	Firmware FirmwareSpec `toml:"firmware"`
	Update   UpdateSpec   `toml:"update"`
}

// DeviceSpec is the simulated device
type DeviceSpec struct {
	ID      string `toml:"id"`
	Model   string `toml:"model"`
	Version string `toml:"version"`
	OSU     bool   `toml:"osu"`
}

// GenuineSpec scripts the genuine check. Attempt i of the check plays
// Attempts[i]; the last attempt repeats for every later retry.
type GenuineSpec struct {
	Attempts []AttemptSpec `toml:"attempts"`
}

// AttemptSpec is one run of the genuine check
type AttemptSpec struct {
	Steps []StepSpec `toml:"steps"`
}

// StepSpec is a genuine check snapshot published After the previous one
type StepSpec struct {
	After      string `toml:"after"`
	Permission string `toml:"permission"`
	Result     string `toml:"result"`
	Error      string `toml:"error"`
}

// FirmwareSpec scripts the device info queries
type FirmwareSpec struct {
	// LockedPolls is how many queries fail with the device locked.
	LockedPolls int `toml:"locked_polls"`
	// ErrorPolls is how many queries fail afterwards with a transport error.
	ErrorPolls int `toml:"error_polls"`
}

// UpdateSpec scripts the firmware installer
type UpdateSpec struct {
	RefuseDisclaimer bool   `toml:"refuse_disclaimer"`
	FailInstalls     int    `toml:"fail_installs"`
	Duration         string `toml:"duration"`
}

// LoadScenario reads and checks a scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario")
	}
	return ParseScenario(data)
}

// ParseScenario decodes and checks a scenario
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "failed to decode scenario")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var (
	permissions = map[string]checks.PermissionState{
		"":              checks.PermissionIdle,
		"idle":          checks.PermissionIdle,
		"unlock-needed": checks.PermissionUnlockNeeded,
		"requested":     checks.PermissionRequested,
		"granted":       checks.PermissionGranted,
		"refused":       checks.PermissionRefused,
	}
	results = map[string]checks.GenuineState{
		"":            checks.GenuineUnchecked,
		"unchecked":   checks.GenuineUnchecked,
		"genuine":     checks.GenuineOK,
		"non-genuine": checks.GenuineNot,
	}
)

func parseDelay(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func (s *Scenario) validate() error {
	if s.Device.ID == "" {
		return fmt.Errorf("scenario: device.id is required")
	}
	if s.Device.Model == "" {
		return fmt.Errorf("scenario: device.model is required")
	}
	if len(s.Genuine.Attempts) == 0 {
		return fmt.Errorf("scenario: at least one genuine attempt is required")
	}
	for i, a := range s.Genuine.Attempts {
		for j, st := range a.Steps {
			if _, ok := permissions[st.Permission]; !ok {
				return fmt.Errorf("scenario: attempt %d step %d: unknown permission %q", i, j, st.Permission)
			}
			if _, ok := results[st.Result]; !ok {
				return fmt.Errorf("scenario: attempt %d step %d: unknown result %q", i, j, st.Result)
			}
			if _, err := parseDelay(st.After); err != nil {
				return errors.Wrapf(err, "scenario: attempt %d step %d", i, j)
			}
		}
	}
	if _, err := parseDelay(s.Update.Duration); err != nil {
		return errors.Wrap(err, "scenario: update.duration")
	}
	if s.Firmware.LockedPolls < 0 || s.Firmware.ErrorPolls < 0 || s.Update.FailInstalls < 0 {
		return fmt.Errorf("scenario: counts cannot be negative")
	}
	return nil
}

// DeviceRef returns the device identity for a check session
func (s *Scenario) DeviceRef() checks.Device {
	return checks.Device{DeviceID: s.Device.ID, ModelID: s.Device.Model}
}

func (st StepSpec) snapshot() checks.GenuineSnapshot {
	snap := checks.GenuineSnapshot{
		GenuineState:    results[st.Result],
		PermissionState: permissions[st.Permission],
	}
	if st.Error != "" {
		snap.Err = errors.New(st.Error)
	}
	return snap
}
