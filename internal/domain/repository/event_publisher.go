package repository

import (
	"context"

	"codegen/internal/domain/entity"
)

// EventPublisher announces finished generations to other services.
type EventPublisher interface {
	PublishGeneration(ctx context.Context, g *entity.Generation) error
}
