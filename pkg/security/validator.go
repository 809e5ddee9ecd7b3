package security

import (
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
)

const maxNameLength = 64

var (
	firmwareNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)
	modelIDPattern      = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
)

// Validator checks firmware catalog manifests before they are trusted
type Validator struct {
	maxManifestSize     int64
	maxTotalSize        int64
	maxCompressionRatio float64

	mu               sync.Mutex
	currentTotalSize int64
}

// NewValidator creates a new security validator
func NewValidator(maxManifestSize, maxTotalSize int64, maxCompressionRatio float64) *Validator {
	slog.Info("security_validator_init",
		"max_manifest_size_kb", maxManifestSize/1024,
		"max_total_size_kb", maxTotalSize/1024,
		"max_compression_ratio", maxCompressionRatio)

	return &Validator{
		maxManifestSize:     maxManifestSize,
		maxTotalSize:        maxTotalSize,
		maxCompressionRatio: maxCompressionRatio,
	}
}

// MaxManifestSize returns the per-manifest size limit
func (v *Validator) MaxManifestSize() int64 {
	return v.maxManifestSize
}

// MaxTotalSize returns the size limit of a whole catalog load
func (v *Validator) MaxTotalSize() int64 {
	return v.maxTotalSize
}

// ValidateKey checks an object key or prefix for path traversal
func (v *Validator) ValidateKey(key string) error {
	if strings.HasPrefix(key, "/") {
		slog.Error("security_key_validation_failed", "key", key, "reason", "absolute_path")
		return fmt.Errorf("security: absolute key not allowed: %s", key)
	}

	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		slog.Error("security_key_validation_failed", "key", key, "reason", "path_traversal")
		return fmt.Errorf("security: path traversal detected: %s", key)
	}

	return nil
}

// ValidateModelID checks a device model identifier
func (v *Validator) ValidateModelID(modelID string) error {
	if !modelIDPattern.MatchString(modelID) || len(modelID) > maxNameLength {
		slog.Error("security_model_validation_failed", "model_id", modelID)
		return fmt.Errorf("security: invalid model id %q", modelID)
	}
	return nil
}

// ValidateFirmwareName checks a firmware image name
func (v *Validator) ValidateFirmwareName(name string) error {
	if len(name) > maxNameLength {
		slog.Error("security_name_validation_failed", "name", name, "reason", "too_long")
		return fmt.Errorf("security: firmware name longer than %d: %q", maxNameLength, name)
	}
	if !firmwareNamePattern.MatchString(name) {
		slog.Error("security_name_validation_failed", "name", name, "reason", "charset")
		return fmt.Errorf("security: invalid firmware name %q", name)
	}
	return nil
}

// ValidateVersion checks that a firmware version is semantic, with or
// without the leading "v"
func (v *Validator) ValidateVersion(version string) error {
	canonical := version
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		slog.Error("security_version_validation_failed", "version", version)
		return fmt.Errorf("security: invalid firmware version %q", version)
	}
	return nil
}

// ValidateManifestSize checks if a manifest exceeds the max manifest size
func (v *Validator) ValidateManifestSize(size int64) error {
	if size > v.maxManifestSize {
		slog.Error("security_manifest_size_exceeded",
			"manifest_size", size,
			"max_manifest_size", v.maxManifestSize)
		return fmt.Errorf("security: manifest size %d exceeds max %d", size, v.maxManifestSize)
	}
	return nil
}

// AddFetchedSize tracks the total size of a catalog load and checks it
// against the limit
func (v *Validator) AddFetchedSize(size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.currentTotalSize += size

	if v.currentTotalSize > v.maxTotalSize {
		slog.Error("security_total_size_exceeded",
			"current_total", v.currentTotalSize,
			"max_total", v.maxTotalSize,
			"manifest_size", size)
		return fmt.Errorf("security: total catalog size %d exceeds max %d",
			v.currentTotalSize, v.maxTotalSize)
	}

	return nil
}

// ValidateCompressionRatio checks gzip manifests for compression bombs
func (v *Validator) ValidateCompressionRatio(compressedSize, uncompressedSize int64) error {
	if compressedSize == 0 {
		slog.Error("security_compression_validation_failed", "reason", "zero_compressed_size")
		return fmt.Errorf("security: compressed size cannot be zero")
	}

	ratio := float64(uncompressedSize) / float64(compressedSize)

	if ratio > v.maxCompressionRatio {
		slog.Error("security_compression_bomb_detected",
			"ratio", ratio,
			"max_ratio", v.maxCompressionRatio,
			"compressed", compressedSize,
			"uncompressed", uncompressedSize)
		return fmt.Errorf("security: compression ratio %.2f exceeds max %.2f (compressed: %d, uncompressed: %d)",
			ratio, v.maxCompressionRatio, compressedSize, uncompressedSize)
	}

	return nil
}

// Reset resets the total size counter
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.currentTotalSize = 0
}

// GetCurrentTotalSize returns the current total fetched size
func (v *Validator) GetCurrentTotalSize() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentTotalSize
}
