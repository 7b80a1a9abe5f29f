// Package store provides durable persistence for archived sessions.
package store

import (
	"context"

	"github.com/nebulatel/handoff/internal/domain"
)

// Repository defines the interface for the session archive.
type Repository interface {
	// SaveArchive writes a finished session and its messages, replacing any
	// prior record with the same id.
	SaveArchive(ctx context.Context, archive domain.Archive) error

	// ListArchives returns summaries of archived sessions, newest first,
	// without their messages.
	ListArchives(ctx context.Context) ([]domain.Archive, error)

	// GetArchive returns one archived session with its ordered messages.
	// Returns nil without error when the id is unknown.
	GetArchive(ctx context.Context, id string) (*domain.Archive, error)

	// Ping verifies database connectivity and returns an error if the
	// database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
