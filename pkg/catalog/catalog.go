// Package catalog resolves the latest firmware available for a device from
// per-model JSON manifests kept on disk or in an S3 bucket.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/hwonboard/earlychecks/pkg/security"
	"golang.org/x/mod/semver"
)

// Entry is one firmware release in a manifest
type Entry struct {
	Version string `json:"version"`
	// Name of the final firmware image; defaults to Version.
	Name string `json:"name,omitempty"`
	// OSU names the updater image installed before the final firmware.
	OSU string `json:"osu,omitempty"`
	// MinVersion is the oldest device version allowed to install the entry.
	MinVersion string `json:"min_version,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Manifest lists the releases of one device model
type Manifest struct {
	ModelID   string  `json:"model_id"`
	Firmwares []Entry `json:"firmwares"`
}

// ParseManifest decodes a manifest and checks every field with v
func ParseManifest(data []byte, v *security.Validator) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "failed to decode manifest")
	}
	if err := v.ValidateModelID(m.ModelID); err != nil {
		return nil, err
	}
	for i := range m.Firmwares {
		e := &m.Firmwares[i]
		if e.Name == "" {
			e.Name = e.Version
		}
		if err := v.ValidateVersion(e.Version); err != nil {
			return nil, errors.Wrapf(err, "manifest %s entry %d", m.ModelID, i)
		}
		if e.MinVersion != "" {
			if err := v.ValidateVersion(e.MinVersion); err != nil {
				return nil, errors.Wrapf(err, "manifest %s entry %d", m.ModelID, i)
			}
		}
		if err := v.ValidateFirmwareName(e.Name); err != nil {
			return nil, errors.Wrapf(err, "manifest %s entry %d", m.ModelID, i)
		}
		if e.OSU != "" {
			if err := v.ValidateFirmwareName(e.OSU); err != nil {
				return nil, errors.Wrapf(err, "manifest %s entry %d", m.ModelID, i)
			}
		}
	}
	return &m, nil
}

// Catalog holds the manifests of every known model
type Catalog struct {
	manifests map[string]*Manifest
}

// New builds a catalog. A later manifest for the same model replaces an
// earlier one.
func New(manifests ...*Manifest) *Catalog {
	c := &Catalog{manifests: make(map[string]*Manifest)}
	for _, m := range manifests {
		entries := append([]Entry(nil), m.Firmwares...)
		sort.SliceStable(entries, func(i, j int) bool {
			return semver.Compare(checks.CanonicalVersion(entries[i].Version), checks.CanonicalVersion(entries[j].Version)) > 0
		})
		c.manifests[m.ModelID] = &Manifest{ModelID: m.ModelID, Firmwares: entries}
	}
	return c
}

// Models returns the model ids in the catalog, sorted
func (c *Catalog) Models() []string {
	out := make([]string, 0, len(c.manifests))
	for id := range c.manifests {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Manifest returns the manifest of modelID, newest release first
func (c *Catalog) Manifest(modelID string) (*Manifest, bool) {
	m, ok := c.manifests[modelID]
	return m, ok
}

// Latest returns the newest firmware a device of modelID running info can
// install, or false when the device is up to date.
func (c *Catalog) Latest(modelID string, info checks.DeviceInfo) (*checks.Firmware, bool) {
	m, ok := c.manifests[modelID]
	if !ok {
		return nil, false
	}
	current := checks.CanonicalVersion(info.Version)

	for _, e := range m.Firmwares {
		v := checks.CanonicalVersion(e.Version)
		if current != "" && semver.Compare(v, current) <= 0 {
			// Entries are sorted, nothing newer follows.
			return nil, false
		}
		if e.MinVersion != "" && current != "" &&
			semver.Compare(current, checks.CanonicalVersion(e.MinVersion)) < 0 {
			continue
		}
		return e.firmware(), true
	}
	return nil, false
}

func (e Entry) firmware() *checks.Firmware {
	fw := &checks.Firmware{
		Version: strings.TrimPrefix(e.Version, "v"),
		Final:   &checks.FinalFirmware{Name: e.Name, Version: strings.TrimPrefix(e.Version, "v")},
	}
	if e.OSU != "" {
		fw.OSU = &checks.OSUFirmware{Name: e.OSU}
	}
	return fw
}

// String summarizes the catalog for logs
func (c *Catalog) String() string {
	parts := make([]string, 0, len(c.manifests))
	for _, id := range c.Models() {
		parts = append(parts, fmt.Sprintf("%s:%d", id, len(c.manifests[id].Firmwares)))
	}
	return strings.Join(parts, ",")
}
