package repository

import "context"

// CodeGenerator turns a description into Python code through an LLM.
type CodeGenerator interface {
	// GenerateCode returns the trimmed text of the first completion choice.
	// Failures are *entity.GenerationError values.
	GenerateCode(ctx context.Context, description string) (string, error)
	// Model is the model identifier sent with every request.
	Model() string
}
