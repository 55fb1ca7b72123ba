// Package docsync keeps the local document directory in step with a
// remote source and optionally triggers a batch when it changes.
package docsync

import (
	"context"
	"errors"
)

// ErrUnknownSource is returned for an unsupported source name.
var ErrUnknownSource = errors.New("unknown document source")

// Source refreshes local documents from a remote location.
type Source interface {
	Name() string
	// Sync brings the local copy up to date and reports whether
	// anything changed.
	Sync(ctx context.Context) (bool, error)
}
