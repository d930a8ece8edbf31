package gcs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Scheme is the URI prefix of Cloud Storage locations.
const Scheme = "gs://"

// ErrInvalidURI is returned for locations that are not gs://bucket/object.
var ErrInvalidURI = errors.New("invalid GCS URI")

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// UploadBytes writes data to a storage bucket under the given object name.
	UploadBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error

	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// IsGCSURI reports whether location uses the gs:// scheme.
func IsGCSURI(location string) bool {
	return strings.HasPrefix(location, Scheme)
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURI, uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, Scheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w (no object path): %s", ErrInvalidURI, uri)
	}
	return parts[0], parts[1], nil
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.csv" → "file.csv"
func ExtractFilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, Scheme)

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// ObjectName joins a bucket prefix and path elements into an object name.
// Empty elements are skipped and no leading slash is produced.
func ObjectName(prefix string, elems ...string) string {
	all := append([]string{prefix}, elems...)
	return strings.TrimPrefix(path.Join(all...), "/")
}
