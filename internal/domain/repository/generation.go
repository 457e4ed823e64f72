package repository

import (
	"context"
	"errors"

	"codegen/internal/domain/entity"
)

var ErrNotFound = errors.New("not found")

// GenerationRepository stores the audit trail of generate requests.
type GenerationRepository interface {
	Save(ctx context.Context, g *entity.Generation) error
	// GetByID returns nil, nil when the record does not exist.
	GetByID(ctx context.Context, id string) (*entity.Generation, error)
	// List returns the newest records first, at most limit of them.
	List(ctx context.Context, limit int) ([]*entity.Generation, error)
	// Delete returns ErrNotFound when nothing was removed.
	Delete(ctx context.Context, id string) error
}
