// Package publish writes compiled documents to a durable destination.
package publish

import (
	"context"
	"fmt"

	"github.com/hyperjump/kumitate/internal/config"
)

// VersionHandle is an opaque identifier for a durably published artifact.
type VersionHandle string

// Publisher is the durable write capability for compiled documents. Once
// Publish returns, the artifact is fully durable and is the definitive current
// configuration; on error the prior artifact remains definitive and unchanged,
// with no intermediate state ever externally visible.
type Publisher interface {
	Publish(ctx context.Context, data []byte) (VersionHandle, error)

	// Current returns the handle of the last published artifact, or an empty
	// handle when nothing has been published yet.
	Current(ctx context.Context) (VersionHandle, error)
}

// New creates a publisher for the configured backend.
func New(ctx context.Context, cfg *config.PublisherConfig) (Publisher, error) {
	switch cfg.Backend {
	case "file":
		return NewFilePublisher(cfg.Path)
	case "secret":
		return NewSecretPublisher(ctx, cfg.Secret.Project, cfg.Secret.Name)
	default:
		return nil, fmt.Errorf("unknown publisher backend %q (want file or secret)", cfg.Backend)
	}
}
