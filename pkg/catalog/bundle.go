package catalog

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/hwonboard/earlychecks/pkg/security"
)

func isBundleKey(key string) bool {
	return strings.HasSuffix(key, ".tar") || strings.HasSuffix(key, ".tar.gz") || strings.HasSuffix(key, ".tgz")
}

// readBundle unpacks a tar archive of manifests, gzipped or not, with
// security validation. Links are rejected and other entries skipped.
func readBundle(key string, data []byte, v *security.Validator) ([]*Manifest, error) {
	var r io.Reader = bytes.NewReader(data)
	compressed := !strings.HasSuffix(key, ".tar")
	if compressed {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open gzip bundle")
		}
		defer zr.Close()
		r = io.LimitReader(zr, v.MaxTotalSize()+1)
	}

	tarReader := tar.NewReader(r)

	var manifests []*Manifest
	var unpacked int64
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tar read error: %w", err)
		}

		if err := v.ValidateKey(header.Name); err != nil {
			return nil, fmt.Errorf("invalid path in bundle: %w", err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			continue

		case tar.TypeSymlink, tar.TypeLink:
			slog.Error("security_bundle_link_rejected", "bundle", key, "entry", header.Name, "target", header.Linkname)
			return nil, fmt.Errorf("security: link %s not allowed in bundle", header.Name)

		case tar.TypeReg:
			if !isManifestKey(header.Name) {
				slog.Debug("catalog_bundle_entry_skipped", "bundle", key, "entry", header.Name)
				continue
			}
			if err := v.ValidateManifestSize(header.Size); err != nil {
				return nil, err
			}

			body, err := io.ReadAll(io.LimitReader(tarReader, header.Size))
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", header.Name, err)
			}
			unpacked += int64(len(body))

			m, err := decode(header.Name, body, v)
			if err != nil {
				return nil, errors.Wrapf(err, "manifest %s", header.Name)
			}
			manifests = append(manifests, m)
		}
	}

	if compressed {
		if err := v.ValidateCompressionRatio(int64(len(data)), unpacked); err != nil {
			return nil, err
		}
	}

	slog.Info("catalog_bundle_read", "bundle", key, "manifest_count", len(manifests), "unpacked_size", unpacked)
	return manifests, nil
}
