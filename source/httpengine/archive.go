package httpengine

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/sgtransit/ingest/cmn/xerrors"
)

// ZipSignature is the 4-byte magic that identifies a zip archive.
var ZipSignature = []byte{'P', 'K', 0x03, 0x04}

// IsZip reports whether payload begins with the zip local-file-header
// signature.
func IsZip(payload []byte) bool {
	return bytes.HasPrefix(payload, ZipSignature)
}

// ExtractedFile is one file pulled out of a zip archive.
type ExtractedFile struct {
	Name    string
	Content []byte
}

// ExtractZip unpacks every regular file entry of a zip archive held in
// memory, rejecting any entry that attempts path traversal:
// an absolute name, a ".." path segment, or - as a second,
// resolution-based check mirroring the original's belt-and-suspenders
// "starts with the resolved extraction root" test - a cleaned path that
// escapes the virtual extraction root "/". maxBytes, if positive, caps
// the decompressed size of any single entry.
func ExtractZip(payload []byte, maxBytes int64) ([]ExtractedFile, error) {
	r, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindSourceTransport, err, "not a valid zip archive")
	}

	var out []ExtractedFile
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if err := validateZipEntryName(name); err != nil {
			return nil, err
		}
		if maxBytes > 0 && int64(f.UncompressedSize64) > maxBytes {
			return nil, xerrors.New(xerrors.KindOversizePayload, "zip entry %q exceeds max_bytes=%d (uncompressed size=%d)", name, maxBytes, f.UncompressedSize64)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindSourceTransport, err, "failed to open zip entry %q", name)
		}
		limited := io.LimitReader(rc, maxReadBytes(maxBytes))
		data, err := io.ReadAll(limited)
		closeErr := rc.Close()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindSourceTransport, err, "failed to read zip entry %q", name)
		}
		if closeErr != nil {
			return nil, xerrors.Wrap(xerrors.KindSourceTransport, closeErr, "failed to close zip entry %q", name)
		}
		if maxBytes > 0 && int64(len(data)) > maxBytes {
			return nil, xerrors.New(xerrors.KindOversizePayload, "zip entry %q exceeds max_bytes=%d after decompression", name, maxBytes)
		}
		out = append(out, ExtractedFile{Name: name, Content: data})
	}
	return out, nil
}

func maxReadBytes(maxBytes int64) int64 {
	if maxBytes <= 0 {
		return 1<<63 - 1
	}
	return maxBytes + 1 // +1 so an over-limit entry is still detected, not silently truncated
}

// validateZipEntryName rejects absolute paths, ".." segments, and any
// name whose cleaned form resolves outside the virtual extraction root.
func validateZipEntryName(name string) error {
	if name == "" {
		return xerrors.New(xerrors.KindZipSlip, "zip entry has an empty name")
	}
	if strings.HasPrefix(name, "/") {
		return xerrors.New(xerrors.KindZipSlip, "zip slip detected (absolute path): %q", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return xerrors.New(xerrors.KindZipSlip, "zip slip detected (parent traversal): %q", name)
		}
	}
	resolved := path.Clean("/" + name)
	if resolved == "/" || strings.HasPrefix(resolved, "/../") {
		return xerrors.New(xerrors.KindZipSlip, "zip slip detected (resolved outside root): %q", name)
	}
	return nil
}
