package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"codegen/internal/domain/entity"
	"codegen/internal/domain/repository"
	"codegen/internal/infrastructure/metrics"
)

const (
	metadataFile = "metadata.json"
	codeFile     = "generated.py"
)

// FileRepository keeps one directory per generation: the code as a .py file
// next to a metadata.json describing the request.
type FileRepository struct {
	basePath string
	logger   zerolog.Logger
}

var _ repository.GenerationRepository = (*FileRepository)(nil)

func NewFileRepository(basePath string, logger zerolog.Logger) (*FileRepository, error) {
	info, err := os.Stat(basePath)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(basePath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", basePath, mkErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check directory %s: %w", basePath, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("path %s exists but is not a directory", basePath)
	}

	return &FileRepository{
		basePath: basePath,
		logger:   logger.With().Str("component", "file_generation_repo").Logger(),
	}, nil
}

func (r *FileRepository) GetBasePath() string {
	return r.basePath
}

func (r *FileRepository) Save(ctx context.Context, g *entity.Generation) error {
	metrics.IncHistoryOp("put")

	dir, err := r.dir(g.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		metrics.IncError("file_generation_repo", "mkdir_error")
		return fmt.Errorf("failed to create generation directory: %w", err)
	}

	if g.Code != "" {
		if err := os.WriteFile(filepath.Join(dir, codeFile), []byte(g.Code+"\n"), 0o644); err != nil {
			metrics.IncError("file_generation_repo", "write_code_error")
			return fmt.Errorf("failed to write %s: %w", codeFile, err)
		}
	}

	meta := *g
	meta.Code = ""
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0o644); err != nil {
		metrics.IncError("file_generation_repo", "write_metadata_error")
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (*entity.Generation, error) {
	metrics.IncHistoryOp("get")

	dir, err := r.dir(id)
	if err != nil {
		return nil, nil
	}
	return r.read(dir)
}

func (r *FileRepository) List(ctx context.Context, limit int) ([]*entity.Generation, error) {
	metrics.IncHistoryOp("list")

	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		metrics.IncError("file_generation_repo", "list_error")
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var generations []*entity.Generation
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		g, err := r.read(filepath.Join(r.basePath, e.Name()))
		if err != nil {
			// A corrupt record is skipped, not fatal to the listing.
			metrics.IncError("file_generation_repo", "read_error")
			r.logger.Warn().Str("entry", e.Name()).Err(err).Msg("skipping unreadable generation")
			continue
		}
		if g != nil {
			generations = append(generations, g)
		}
	}

	sort.Slice(generations, func(i, j int) bool {
		return generations[i].CreatedAt.After(generations[j].CreatedAt)
	})
	if limit > 0 && len(generations) > limit {
		generations = generations[:limit]
	}
	return generations, nil
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	metrics.IncHistoryOp("delete")

	dir, err := r.dir(id)
	if err != nil {
		return repository.ErrNotFound
	}
	if _, err := os.Stat(filepath.Join(dir, metadataFile)); os.IsNotExist(err) {
		return repository.ErrNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		metrics.IncError("file_generation_repo", "delete_error")
		return fmt.Errorf("failed to delete generation directory: %w", err)
	}
	return nil
}

// dir rejects ids that would escape basePath.
func (r *FileRepository) dir(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid generation id %q", id)
	}
	return filepath.Join(r.basePath, id), nil
}

// read returns nil, nil for directories without metadata.
func (r *FileRepository) read(dir string) (*entity.Generation, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var g entity.Generation
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	code, err := os.ReadFile(filepath.Join(dir, codeFile))
	switch {
	case err == nil:
		g.Code = strings.TrimSuffix(string(code), "\n")
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", codeFile, err)
	}
	return &g, nil
}
