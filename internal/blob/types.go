// Package blob exposes the artifact store abstraction and selects a backend
// from configuration. Other packages depend on blob.Store, never on the
// infra implementations.
package blob

import (
	"mocacore/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrUnsupported indicates an operation isn't supported by a driver.
	ErrUnsupported = core.ErrUnsupported
	// ErrNotFound indicates a missing key.
	ErrNotFound = core.ErrNotFound
	// ErrExists indicates Put hit an existing key.
	ErrExists = core.ErrExists
)

// ArtifactKey builds the archive key of a drawing artifact.
func ArtifactKey(sessionID, section, resultID, ext string) string {
	return core.ArtifactKey(sessionID, section, resultID, ext)
}

// SessionPrefix returns the key prefix of a session's artifacts.
func SessionPrefix(sessionID string) string { return core.SessionPrefix(sessionID) }

// ContentTypeFor maps an image format to its MIME type.
func ContentTypeFor(format string) string { return core.ContentTypeFor(format) }
