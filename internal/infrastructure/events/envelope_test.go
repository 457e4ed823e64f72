package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"codegen/internal/domain/entity"
)

func TestWrapUnwrapGenerationPayload(t *testing.T) {
	g := entity.NewGeneration("sort a list of numbers", "test-model")
	g.Succeed("print(sorted([3, 1, 2]))", 1500*time.Millisecond)

	raw, err := Wrap(RoutingKeyFor(g), PayloadFor(g))
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.ID == "" {
		t.Fatal("expected envelope id")
	}
	if env.RoutingKey != CodegenCompleted {
		t.Fatalf("unexpected routing key %q", env.RoutingKey)
	}

	p, err := Unwrap[GenerationPayload](raw)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if p.GenerationID != g.ID || p.DurationMillis != 1500 || p.DescriptionLength != len(g.Description) {
		t.Fatalf("unexpected payload %+v", p)
	}
	if p.CodeLength != len(g.Code) {
		t.Fatalf("unexpected code length %d", p.CodeLength)
	}
}

func TestPayloadOmitsDescriptionText(t *testing.T) {
	g := entity.NewGeneration("my secret project", "m")
	g.Succeed("pass", time.Second)

	raw, err := Wrap(RoutingKeyFor(g), PayloadFor(g))
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if bytes.Contains(raw, []byte("my secret project")) {
		t.Fatal("description text leaked into event")
	}
}

func TestRoutingKeyFor(t *testing.T) {
	failed := entity.NewGeneration("d", "m")
	failed.Fail(entity.NewGenerationError(entity.ErrKindTransport, errors.New("x")), 0)
	if RoutingKeyFor(failed) != CodegenFailed {
		t.Fatalf("unexpected key %q", RoutingKeyFor(failed))
	}

	rejected := entity.NewGeneration("", "m")
	rejected.Fail(entity.NewGenerationError(entity.ErrKindValidation, entity.ErrEmptyDescription), 0)
	if RoutingKeyFor(rejected) != CodegenRejected {
		t.Fatalf("unexpected key %q", RoutingKeyFor(rejected))
	}
}
