package catalog

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/hwonboard/earlychecks/pkg/security"
	"github.com/hwonboard/earlychecks/pkg/storage"
)

// ObjectStore is the part of the S3 client the catalog reads from
type ObjectStore interface {
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	Fetch(ctx context.Context, key string, maxSize int64) (*storage.FetchResult, error)
}

// Source is a parsed catalog location
type Source struct {
	// Bucket is set for s3:// sources.
	Bucket string
	Prefix string
	// Path is set for local sources, a manifest file or a directory of them.
	Path string
}

// IsS3 reports whether the source lives in a bucket
func (s Source) IsS3() bool {
	return s.Bucket != ""
}

// ParseSource accepts "s3://bucket/prefix" or a local path
func ParseSource(raw string) (Source, error) {
	if raw == "" {
		return Source{}, fmt.Errorf("empty catalog source")
	}
	if !strings.HasPrefix(raw, "s3://") {
		return Source{Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Source{}, errors.Wrap(err, "invalid catalog source")
	}
	if u.Host == "" {
		return Source{}, fmt.Errorf("catalog source %q has no bucket", raw)
	}
	return Source{Bucket: u.Host, Prefix: strings.TrimPrefix(u.Path, "/")}, nil
}

func isManifestKey(key string) bool {
	return strings.HasSuffix(key, ".json") || strings.HasSuffix(key, ".json.gz")
}

// LoadPath loads manifests from a file or a directory
func LoadPath(path string, v *security.Validator) (*Catalog, error) {
	slog.Info("catalog_load_start", "path", path)
	v.Reset()

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat catalog path")
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read catalog dir")
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() && (isManifestKey(e.Name()) || isBundleKey(e.Name())) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}

	var manifests []*Manifest
	for _, f := range files {
		st, err := os.Stat(f)
		if err != nil {
			return nil, errors.Wrap(err, "failed to stat manifest")
		}
		limit := v.MaxManifestSize()
		if isBundleKey(f) {
			limit = v.MaxTotalSize()
		}
		if st.Size() > limit {
			return nil, fmt.Errorf("security: %s size %d exceeds max %d", f, st.Size(), limit)
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read manifest")
		}
		ms, err := load(f, data, v)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, ms...)
	}

	c := New(manifests...)
	slog.Info("catalog_loaded", "path", path, "models", c.String(), "total_size", v.GetCurrentTotalSize())
	return c, nil
}

// LoadStore loads every manifest under prefix
func LoadStore(ctx context.Context, store ObjectStore, prefix string, v *security.Validator) (*Catalog, error) {
	slog.Info("catalog_load_start", "prefix", prefix)
	v.Reset()

	if err := v.ValidateKey(prefix); err != nil {
		return nil, err
	}
	keys, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list manifests")
	}

	var manifests []*Manifest
	for _, key := range keys {
		if !isManifestKey(key) && !isBundleKey(key) {
			continue
		}
		if err := v.ValidateKey(key); err != nil {
			return nil, err
		}
		limit := v.MaxManifestSize()
		if isBundleKey(key) {
			limit = v.MaxTotalSize()
		}
		res, err := store.Fetch(ctx, key, limit)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch manifest %s", key)
		}
		ms, err := load(key, res.Body, v)
		if err != nil {
			return nil, err
		}
		slog.Info("catalog_object_fetched", "s3_key", key, "manifest_count", len(ms), "sha256", res.SHA256)
		manifests = append(manifests, ms...)
	}

	c := New(manifests...)
	slog.Info("catalog_loaded", "prefix", prefix, "models", c.String(), "total_size", v.GetCurrentTotalSize())
	return c, nil
}

// load parses one catalog object, either a manifest or a bundle of them
func load(key string, data []byte, v *security.Validator) ([]*Manifest, error) {
	if isBundleKey(key) {
		ms, err := readBundle(key, data, v)
		if err != nil {
			return nil, errors.Wrapf(err, "bundle %s", key)
		}
		return ms, nil
	}
	m, err := decode(key, data, v)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest %s", key)
	}
	return []*Manifest{m}, nil
}

// decode unpacks a raw manifest, gunzipping .gz keys, and parses it
func decode(key string, data []byte, v *security.Validator) (*Manifest, error) {
	if err := v.AddFetchedSize(int64(len(data))); err != nil {
		return nil, err
	}

	plain := data
	if strings.HasSuffix(key, ".gz") {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "failed to open gzip manifest")
		}
		defer zr.Close()
		plain, err = io.ReadAll(io.LimitReader(zr, v.MaxManifestSize()+1))
		if err != nil {
			return nil, errors.Wrap(err, "failed to gunzip manifest")
		}
		if err := v.ValidateCompressionRatio(int64(len(data)), int64(len(plain))); err != nil {
			return nil, err
		}
	}
	if err := v.ValidateManifestSize(int64(len(plain))); err != nil {
		return nil, err
	}
	return ParseManifest(plain, v)
}
