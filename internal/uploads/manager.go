// Package uploads implements the attachment manager for book files: it
// validates multipart payloads, maps them to collision-resistant storage
// keys, and keeps blob lifecycle in step with record updates.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
)

const (
	// FieldImage and FieldPDF are the only accepted multipart field names.
	FieldImage = "image"
	FieldPDF   = "pdf"

	// MaxFileBytes is the per-file size ceiling, applied to both fields.
	MaxFileBytes = 10 << 20

	bucketImages = "images"
	bucketPDFs   = "pdfs"
)

var (
	ErrUnexpectedField = errors.New("unexpected upload field")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file exceeds 10 MiB limit")
	ErrEmptyFile       = errors.New("empty file")
	ErrCorruptPDF      = errors.New("file is not a readable PDF")
)

// Manager validates attachments and drives their storage lifecycle.
type Manager struct {
	blobs BlobStore
}

// NewManager wires the manager to a blob store.
func NewManager(blobs BlobStore) *Manager {
	return &Manager{blobs: blobs}
}

// Accept validates field name, MIME type, and size, and returns the
// storage key the payload would be written under. It performs no I/O.
func (m *Manager) Accept(field, mimeType string, size int64, filename string) (string, error) {
	switch field {
	case FieldImage:
		if !strings.HasPrefix(mimeType, "image/") {
			return "", fmt.Errorf("%w: field %q requires an image/* type, got %q", ErrUnsupportedType, field, mimeType)
		}
	case FieldPDF:
		if mimeType != "application/pdf" {
			return "", fmt.Errorf("%w: field %q requires application/pdf, got %q", ErrUnsupportedType, field, mimeType)
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnexpectedField, field)
	}
	if size <= 0 {
		return "", ErrEmptyFile
	}
	if size > MaxFileBytes {
		return "", ErrTooLarge
	}
	return storageKey(field, filename), nil
}

// Store validates the payload and writes it, returning the storage key.
// PDF payloads must open cleanly; a corrupt file is rejected before any
// blob or record is written.
func (m *Manager) Store(ctx context.Context, field, filename, mimeType string, data []byte) (string, error) {
	key, err := m.Accept(field, mimeType, int64(len(data)), filename)
	if err != nil {
		return "", err
	}
	if field == FieldPDF {
		if _, err := pdf.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
			return "", fmt.Errorf("%w: %v", ErrCorruptPDF, err)
		}
	}
	if err := m.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
		return "", fmt.Errorf("store %s: %w", field, err)
	}
	return key, nil
}

// Replace writes the new payload first and deletes the old key only after
// the write succeeds, so a failed upload never loses a working attachment.
// A failed delete of the old blob is surfaced but the new key is still
// returned; the caller's record already points at the new file.
func (m *Manager) Replace(ctx context.Context, oldKey, field, filename, mimeType string, data []byte) (string, error) {
	key, err := m.Store(ctx, field, filename, mimeType, data)
	if err != nil {
		return "", err
	}
	if oldKey != "" && oldKey != key {
		if err := m.Delete(ctx, oldKey); err != nil {
			return key, fmt.Errorf("delete replaced %s: %w", field, err)
		}
	}
	return key, nil
}

// Delete removes a stored blob. Deleting a missing key is not an error.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return m.blobs.Delete(ctx, key)
}

// Exists reports whether a stored key still resolves to a blob.
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	return m.blobs.Exists(ctx, key)
}

// storageKey builds "<bucket>/<field>-<uuid><ext>" with forward slashes
// on every host OS.
func storageKey(field, filename string) string {
	bucket := bucketImages
	if field == FieldPDF {
		bucket = bucketPDFs
	}
	return path.Join(bucket, field+"-"+uuid.NewString()+safeExt(filename))
}

func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "" || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
