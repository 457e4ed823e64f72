package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"codegen/app/config"
	"codegen/app/usecase"
	"codegen/internal/domain/repository"
	"codegen/internal/infrastructure/events"
	"codegen/internal/infrastructure/llm"
	"codegen/internal/infrastructure/store/filesystem"
	mongorepo "codegen/internal/infrastructure/store/mongodb"
)

const connectTimeout = 10 * time.Second

type services struct {
	codeService *usecase.CodeService

	// configErr is set when the generator has no credentials.
	configErr error
	closers   []func(context.Context)
}

// buildServices wires the generator with the configured history backend and,
// when withEvents is set and AMQP_URL is present, the event publisher.
func buildServices(ctx context.Context, cfg *config.Config, logger zerolog.Logger, withEvents bool) (*services, error) {
	s := &services{}

	generator := llm.NewTogetherGenerator(llm.Options{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	if err := generator.ConfigError(); err != nil {
		s.configErr = err
		logger.Error().Err(err).Msg("generator is not configured; requests will fail until the key is set")
	}

	history, err := s.openHistory(ctx, cfg.History, logger)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	var publisher repository.EventPublisher
	if withEvents && cfg.AMQP.URL != "" {
		p, err := events.NewAMQPPublisher(ctx, cfg.AMQP.URL, logger)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("event publisher: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) { p.Close() })
		publisher = p
		logger.Info().Str("exchange", events.Exchange).Msg("publishing generation events")
	}

	s.codeService = usecase.NewCodeService(generator, history, publisher, logger)
	return s, nil
}

func (s *services) openHistory(ctx context.Context, cfg config.HistoryConfig, logger zerolog.Logger) (repository.GenerationRepository, error) {
	switch cfg.Backend {
	case config.HistoryMongo:
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		client, err := mongo.Connect(connCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		s.closers = append(s.closers, func(ctx context.Context) {
			if err := client.Disconnect(ctx); err != nil {
				logger.Error().Err(err).Msg("mongo disconnect error")
			}
		})
		if err := client.Ping(connCtx, nil); err != nil {
			return nil, fmt.Errorf("mongo ping: %w", err)
		}

		repo, err := mongorepo.NewMongoGenerationRepo(connCtx, client.Database(cfg.Mongo.Database), logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("database", cfg.Mongo.Database).Msg("generation history stored in mongo")
		return repo, nil

	case config.HistoryFilesystem:
		repo, err := filesystem.NewFileRepository(cfg.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("file history: %w", err)
		}
		logger.Info().Str("dir", repo.GetBasePath()).Msg("generation history stored on disk")
		return repo, nil

	default:
		return nil, nil
	}
}

// Close releases connections in reverse order of opening.
func (s *services) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
	s.closers = nil
}
