// Package blobstore holds raw uploaded bytes between submission and ingestion.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

var ErrNotFound = errors.New("blob not found")

// Store keeps raw uploads addressable by the path returned from Put.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Checksum is the idempotency key of an upload: hex SHA-256 of the raw bytes.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ObjectName prefixes the client file name with a timestamp so repeated names
// never collide.
func ObjectName(name string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	return fmt.Sprintf("%d_%s", now.UnixNano(), base)
}
