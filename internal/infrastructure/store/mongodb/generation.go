package mongodb

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"codegen/internal/domain/entity"
	"codegen/internal/domain/repository"
	"codegen/internal/infrastructure/metrics"
)

type MongoGenerationRepo struct {
	col    *mongo.Collection
	logger zerolog.Logger
}

var _ repository.GenerationRepository = (*MongoGenerationRepo)(nil)

func NewMongoGenerationRepo(ctx context.Context, db *mongo.Database, logger zerolog.Logger) (*MongoGenerationRepo, error) {
	col := db.Collection("generations")

	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{bson.E{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return nil, err
	}

	return &MongoGenerationRepo{
		col:    col,
		logger: logger,
	}, nil
}

func (r *MongoGenerationRepo) Save(ctx context.Context, g *entity.Generation) error {
	metrics.IncHistoryOp("put")

	_, err := r.col.InsertOne(ctx, g)
	if err != nil {
		metrics.IncError("mongo_generation_repo", "save_error")
		return err
	}
	return nil
}

func (r *MongoGenerationRepo) GetByID(ctx context.Context, id string) (*entity.Generation, error) {
	metrics.IncHistoryOp("get")

	var g entity.Generation
	err := r.col.FindOne(ctx, bson.M{"id": id}).Decode(&g)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		metrics.IncError("mongo_generation_repo", "get_error")
		return nil, err
	}
	return &g, nil
}

func (r *MongoGenerationRepo) List(ctx context.Context, limit int) ([]*entity.Generation, error) {
	metrics.IncHistoryOp("list")

	opts := options.Find().SetSort(bson.D{bson.E{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := r.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		metrics.IncError("mongo_generation_repo", "list_error")
		return nil, err
	}
	defer func() {
		if err := cur.Close(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("close cursor")
		}
	}()

	var generations []*entity.Generation
	for cur.Next(ctx) {
		var g entity.Generation
		if err := cur.Decode(&g); err != nil {
			metrics.IncError("mongo_generation_repo", "list_decode_error")
			return nil, err
		}
		generations = append(generations, &g)
	}
	if err := cur.Err(); err != nil {
		metrics.IncError("mongo_generation_repo", "list_cursor_error")
		return nil, err
	}
	return generations, nil
}

func (r *MongoGenerationRepo) Delete(ctx context.Context, id string) error {
	metrics.IncHistoryOp("delete")

	res, err := r.col.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		metrics.IncError("mongo_generation_repo", "delete_error")
		return err
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
