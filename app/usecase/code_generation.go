package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"codegen/internal/domain/entity"
	"codegen/internal/domain/repository"
	"codegen/internal/infrastructure/metrics"
)

var (
	ErrHistoryDisabled    = errors.New("generation history is disabled")
	ErrGenerationNotFound = errors.New("generation not found")
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500

	sideEffectTimeout = 10 * time.Second
)

type CodeGenerationUseCase interface {
	Generate(ctx context.Context, description string) (*entity.Generation, error)
	GenerateCode(ctx context.Context, description string) string
	ListGenerations(ctx context.Context, limit int) ([]*entity.Generation, error)
	GetGeneration(ctx context.Context, id string) (*entity.Generation, error)
	DeleteGeneration(ctx context.Context, id string) error
}

type CodeService struct {
	generator repository.CodeGenerator
	history   repository.GenerationRepository
	publisher repository.EventPublisher
	logger    zerolog.Logger
}

var _ CodeGenerationUseCase = (*CodeService)(nil)

// NewCodeService wires the generator with the optional history store and
// event publisher; either may be nil.
func NewCodeService(
	generator repository.CodeGenerator,
	history repository.GenerationRepository,
	publisher repository.EventPublisher,
	logger zerolog.Logger,
) *CodeService {
	return &CodeService{
		generator: generator,
		history:   history,
		publisher: publisher,
		logger:    logger.With().Str("component", "codegen").Logger(),
	}
}

// Generate validates the description, asks the model for code and records the
// outcome. The returned error is the *entity.GenerationError also stored on the
// generation; the generation is never nil.
func (s *CodeService) Generate(ctx context.Context, description string) (*entity.Generation, error) {
	start := time.Now()
	gen := entity.NewGeneration(description, s.generator.Model())

	if err := entity.ValidateDescription(description); err != nil {
		metrics.IncValidationRejection(rejectionReason(err))
		gen.Fail(err, time.Since(start))
		s.finish(ctx, gen)
		return gen, err
	}

	metrics.IncInFlight()
	code, err := s.generator.GenerateCode(ctx, description)
	metrics.DecInFlight()
	elapsed := time.Since(start)
	metrics.ObserveGenerationDuration(elapsed)

	if err != nil {
		s.logger.Warn().
			Str("generation_id", gen.ID).
			Str("kind", string(entity.KindOf(err))).
			Err(err).
			Msg("generation failed")
		gen.Fail(err, elapsed)
		s.finish(ctx, gen)
		return gen, err
	}

	gen.Succeed(code, elapsed)
	s.logger.Info().
		Str("generation_id", gen.ID).
		Dur("duration", elapsed).
		Int("code_length", len(code)).
		Msg("code generated")
	s.finish(ctx, gen)
	return gen, nil
}

// GenerateCode returns the generated code, or a display string when anything
// went wrong. It never fails.
func (s *CodeService) GenerateCode(ctx context.Context, description string) string {
	gen, _ := s.Generate(ctx, description)
	return gen.Result()
}

func (s *CodeService) ListGenerations(ctx context.Context, limit int) ([]*entity.Generation, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	gens, err := s.history.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return gens, nil
}

func (s *CodeService) GetGeneration(ctx context.Context, id string) (*entity.Generation, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	gen, err := s.history.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get generation %s: %w", id, err)
	}
	if gen == nil {
		return nil, ErrGenerationNotFound
	}
	return gen, nil
}

func (s *CodeService) DeleteGeneration(ctx context.Context, id string) error {
	if s.history == nil {
		return ErrHistoryDisabled
	}
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if err := s.history.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrGenerationNotFound
		}
		return fmt.Errorf("delete generation %s: %w", id, err)
	}
	return nil
}

// finish records metrics and runs the optional side effects. Their failures are
// logged and never reach the user.
func (s *CodeService) finish(ctx context.Context, gen *entity.Generation) {
	metrics.IncGeneration(string(gen.Status))

	if s.history == nil && s.publisher == nil {
		return
	}

	// The request context may already be canceled by a disconnecting client.
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if s.history != nil {
		if err := s.history.Save(sideCtx, gen); err != nil {
			metrics.IncError("codegen", "history_save")
			s.logger.Error().Str("generation_id", gen.ID).Err(err).Msg("save generation failed")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishGeneration(sideCtx, gen); err != nil {
			metrics.IncError("codegen", "publish")
			s.logger.Error().Str("generation_id", gen.ID).Err(err).Msg("publish generation failed")
		}
	}
}

func rejectionReason(err error) string {
	if errors.Is(err, entity.ErrDescriptionTooLong) {
		return "too_long"
	}
	return "empty"
}
