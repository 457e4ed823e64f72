package entity

import (
	"time"

	"github.com/google/uuid"
)

type GenerationStatus string

const (
	GenerationSucceeded GenerationStatus = "succeeded"
	GenerationFailed    GenerationStatus = "failed"
	GenerationRejected  GenerationStatus = "rejected"
)

// Generation is the audit record of one generate request.
type Generation struct {
	ID          string           `json:"id" bson:"id"`
	Description string           `json:"description" bson:"description"`
	Model       string           `json:"model" bson:"model"`
	Code        string           `json:"code,omitempty" bson:"code,omitempty"`
	Error       string           `json:"error,omitempty" bson:"error,omitempty"`
	ErrorKind   ErrorKind        `json:"error_kind,omitempty" bson:"error_kind,omitempty"`
	Status      GenerationStatus `json:"status" bson:"status"`
	Duration    time.Duration    `json:"duration" bson:"duration"`
	CreatedAt   time.Time        `json:"created_at" bson:"created_at"`
}

func NewGeneration(description, model string) *Generation {
	return &Generation{
		ID:          uuid.New().String(),
		Description: description,
		Model:       model,
		CreatedAt:   time.Now().UTC(),
	}
}

func (g *Generation) Succeed(code string, d time.Duration) {
	g.Code = code
	g.Status = GenerationSucceeded
	g.Duration = d
}

// Fail records err; validation failures are marked rejected.
func (g *Generation) Fail(err error, d time.Duration) {
	g.Error = DisplayError(err)
	g.ErrorKind = KindOf(err)
	g.Status = GenerationFailed
	if g.ErrorKind == ErrKindValidation {
		g.Status = GenerationRejected
	}
	g.Duration = d
}

// Result is what the output area shows: the code, or the error text.
func (g *Generation) Result() string {
	if g.Status == GenerationSucceeded {
		return g.Code
	}
	return g.Error
}
