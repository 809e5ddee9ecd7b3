package checks

import (
	"strings"

	"golang.org/x/mod/semver"
)

// ModelBlue is the only model needing the legacy reset instructions.
const ModelBlue = "blue"

// legacyResetBelow is the first blue firmware that no longer needs a manual
// reset before updating.
const legacyResetBelow = "v2.1.1"

var productNames = map[string]string{
	"nanoS":  "Nano S",
	"nanoSP": "Nano S Plus",
	"nanoX":  "Nano X",
	"stax":   "Stax",
	"europa": "Flex",
	"blue":   "Blue",
}

// ProductName returns the marketing name of a device model.
func ProductName(modelID string) string {
	if name, ok := productNames[modelID]; ok {
		return name
	}
	return modelID
}

// CanonicalVersion turns a firmware version such as "2.1.0-il2" into a
// semver string ("v2.1.0-il2"), or "" if it cannot be parsed.
func CanonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// NeedsLegacyResetInstructions reports whether updating a device of model
// modelID running info requires the manual reset step.
func NeedsLegacyResetInstructions(info DeviceInfo, modelID string) bool {
	if modelID != ModelBlue {
		return false
	}
	v := CanonicalVersion(info.Version)
	if v == "" {
		return false
	}
	return semver.Compare(v, legacyResetBelow) < 0
}
