package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"codegen/internal/domain/entity"
)

// Routing keys on the codegen.events topic exchange.
const (
	CodegenCompleted = "codegen.completed"
	CodegenFailed    = "codegen.failed"
	CodegenRejected  = "codegen.rejected"
)

type Envelope struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Timestamp  time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// GenerationPayload is the event body. Descriptions are user input and may be
// sensitive, so only their length travels.
type GenerationPayload struct {
	GenerationID      string                  `json:"generation_id"`
	Model             string                  `json:"model"`
	Status            entity.GenerationStatus `json:"status"`
	ErrorKind         entity.ErrorKind        `json:"error_kind,omitempty"`
	DescriptionLength int                     `json:"description_length"`
	CodeLength        int                     `json:"code_length"`
	DurationMillis    int64                   `json:"duration_ms"`
	CreatedAt         time.Time               `json:"created_at"`
}

func Wrap(routingKey string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.New().String(),
		RoutingKey: routingKey,
		Timestamp:  time.Now().UTC(),
		Payload:    p,
	})
}

func Unwrap[T any](raw []byte) (*T, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var t T
	return &t, json.Unmarshal(env.Payload, &t)
}

// RoutingKeyFor maps a generation's status to its routing key.
func RoutingKeyFor(g *entity.Generation) string {
	switch g.Status {
	case entity.GenerationSucceeded:
		return CodegenCompleted
	case entity.GenerationRejected:
		return CodegenRejected
	default:
		return CodegenFailed
	}
}

func PayloadFor(g *entity.Generation) GenerationPayload {
	return GenerationPayload{
		GenerationID:      g.ID,
		Model:             g.Model,
		Status:            g.Status,
		ErrorKind:         g.ErrorKind,
		DescriptionLength: len([]rune(g.Description)),
		CodeLength:        len(g.Code),
		DurationMillis:    g.Duration.Milliseconds(),
		CreatedAt:         g.CreatedAt,
	}
}
