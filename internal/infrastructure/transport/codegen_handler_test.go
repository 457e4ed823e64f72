package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"codegen/app/usecase"
	"codegen/internal/domain/entity"
	"codegen/internal/infrastructure/store/filesystem"
)

type stubGenerator struct {
	mu    sync.Mutex
	calls int
	code  string
	err   error
}

func (s *stubGenerator) GenerateCode(ctx context.Context, description string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.code, s.err
}

func (s *stubGenerator) Model() string { return "stub-model" }

func (s *stubGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testEnv struct {
	gen    *stubGenerator
	router *mux.Router
}

func newTestEnv(t *testing.T, gen *stubGenerator, withHistory bool, configErr error) *testEnv {
	t.Helper()

	var svc *usecase.CodeService
	if withHistory {
		repo, err := filesystem.NewFileRepository(t.TempDir(), zerolog.Nop())
		if err != nil {
			t.Fatalf("file repo: %v", err)
		}
		svc = usecase.NewCodeService(gen, repo, nil, zerolog.Nop())
	} else {
		svc = usecase.NewCodeService(gen, nil, nil, zerolog.Nop())
	}

	r := mux.NewRouter()
	NewCodegenHandler(svc, nil, configErr, zerolog.Nop()).RegisterRoutes(r)
	return &testEnv{gen: gen, router: r}
}

func (e *testEnv) do(method, target, body string, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestIndexPage(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{}, false, nil)

	rec := env.do(http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Python Code Generator with CodeLlama",
		"Application or Code Description",
		"Generate Code",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "Generated Python Code") {
		t.Error("result section rendered before any submission")
	}
}

func TestIndexPageShowsConfigError(t *testing.T) {
	cfgErr := entity.NewGenerationError(entity.ErrKindConfiguration, entity.ErrMissingAPIKey)
	env := newTestEnv(t, &stubGenerator{}, false, cfgErr)

	rec := env.do(http.MethodGet, "/", "", "")
	if !strings.Contains(rec.Body.String(), "TOGETHER_API_KEY is missing") {
		t.Fatalf("expected config banner, got %s", rec.Body.String())
	}
}

func TestSubmitRejectsBlankDescription(t *testing.T) {
	gen := &stubGenerator{code: "print(1)"}
	env := newTestEnv(t, gen, false, nil)

	form := url.Values{"description": {"   "}}.Encode()
	rec := env.do(http.MethodPost, "/", form, "application/x-www-form-urlencoded")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Please provide a valid description.") {
		t.Fatalf("missing validation message: %s", rec.Body.String())
	}
	if gen.callCount() != 0 {
		t.Fatalf("backend called %d times", gen.callCount())
	}
}

func TestSubmitRendersHighlightedCode(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{code: "def hello():\n    print('hi')"}, false, nil)

	form := url.Values{"description": {"say hi"}}.Encode()
	rec := env.do(http.MethodPost, "/", form, "application/x-www-form-urlencoded")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Generated Python Code") {
		t.Fatal("result section missing")
	}
	if !strings.Contains(body, "hello") {
		t.Fatal("generated code missing from page")
	}
	if !strings.Contains(body, "say hi") {
		t.Fatal("description not kept in the textarea")
	}
}

func TestSubmitShowsUpstreamErrorInOutput(t *testing.T) {
	gen := &stubGenerator{err: entity.NewGenerationError(entity.ErrKindTransport, errors.New("connection refused"))}
	env := newTestEnv(t, gen, false, nil)

	form := url.Values{"description": {"anything"}}.Encode()
	rec := env.do(http.MethodPost, "/", form, "application/x-www-form-urlencoded")

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Error with CodeLlama: connection refused") {
		t.Fatalf("missing error text: %s", rec.Body.String())
	}
}

func TestGenerateAPI(t *testing.T) {
	tests := []struct {
		name       string
		gen        *stubGenerator
		body       string
		wantStatus int
		wantKind   entity.ErrorKind
		wantCalls  int
	}{
		{
			name:       "success",
			gen:        &stubGenerator{code: "print(1)"},
			body:       `{"description":"print one"}`,
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "empty description",
			gen:        &stubGenerator{code: "print(1)"},
			body:       `{"description":""}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   entity.ErrKindValidation,
		},
		{
			name:       "too long",
			gen:        &stubGenerator{code: "print(1)"},
			body:       `{"description":"` + strings.Repeat("x", entity.MaxDescriptionLength+1) + `"}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   entity.ErrKindValidation,
		},
		{
			name:       "malformed upstream",
			gen:        &stubGenerator{err: entity.NewGenerationError(entity.ErrKindMalformed, entity.ErrNoChoices)},
			body:       `{"description":"print one"}`,
			wantStatus: http.StatusBadGateway,
			wantKind:   entity.ErrKindMalformed,
			wantCalls:  1,
		},
		{
			name:       "not configured",
			gen:        &stubGenerator{err: entity.NewGenerationError(entity.ErrKindConfiguration, entity.ErrMissingAPIKey)},
			body:       `{"description":"print one"}`,
			wantStatus: http.StatusServiceUnavailable,
			wantKind:   entity.ErrKindConfiguration,
			wantCalls:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.gen, false, nil)
			rec := env.do(http.MethodPost, "/api/v1/generate", tt.body, "application/json")

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			resp := decode[generateResp](t, rec)
			if resp.Kind != tt.wantKind {
				t.Fatalf("expected kind %q, got %q", tt.wantKind, resp.Kind)
			}
			if tt.wantKind == "" && (resp.Code != "print(1)" || resp.HTML == "") {
				t.Fatalf("expected code and html, got %+v", resp)
			}
			if tt.wantKind != "" && resp.Error == "" {
				t.Fatal("expected error text")
			}
			if tt.gen.callCount() != tt.wantCalls {
				t.Fatalf("expected %d backend calls, got %d", tt.wantCalls, tt.gen.callCount())
			}
		})
	}
}

func TestGenerateAPIBadBody(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{}, false, nil)
	rec := env.do(http.MethodPost, "/api/v1/generate", "{not json", "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGenerationsDisabled(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{}, false, nil)

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/api/v1/generations"},
		{http.MethodGet, "/api/v1/generations/abc"},
		{http.MethodDelete, "/api/v1/generations/abc"},
	} {
		rec := env.do(tc.method, tc.target, "", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", tc.method, tc.target, rec.Code)
		}
	}
}

func TestGenerationsHistory(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{code: "x = 1"}, true, nil)

	rec := env.do(http.MethodPost, "/api/v1/generate", `{"description":"set x"}`, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("generate: %d", rec.Code)
	}
	created := decode[generateResp](t, rec)

	rec = env.do(http.MethodGet, "/api/v1/generations?limit=10", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	list := decode[[]entity.Generation](t, rec)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = env.do(http.MethodGet, "/api/v1/generations/"+created.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	if got := decode[entity.Generation](t, rec); got.Code != "x = 1" {
		t.Fatalf("unexpected code %q", got.Code)
	}

	if rec = env.do(http.MethodDelete, "/api/v1/generations/"+created.ID, "", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec = env.do(http.MethodGet, "/api/v1/generations/"+created.ID, "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestGenerationsBadLimit(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{}, true, nil)
	if rec := env.do(http.MethodGet, "/api/v1/generations?limit=-1", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	cfgErr := entity.NewGenerationError(entity.ErrKindConfiguration, entity.ErrMissingAPIKey)
	env := newTestEnv(t, &stubGenerator{}, false, cfgErr)

	rec := env.do(http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	status := decode[map[string]interface{}](t, rec)
	if status["ok"] != true {
		t.Fatalf("expected ok, got %v", status)
	}
	if status["configured"] != false {
		t.Fatalf("expected configured=false, got %v", status["configured"])
	}
}

func TestWebsocketGenerate(t *testing.T) {
	gen := &stubGenerator{code: "print('ws')"}
	env := newTestEnv(t, gen, false, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(generateReq{Description: "print ws"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp generateResp
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Code != "print('ws')" || resp.Status != entity.GenerationSucceeded {
		t.Fatalf("unexpected response %+v", resp)
	}

	if err := conn.WriteJSON(generateReq{Description: " "}); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp = generateResp{}
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Kind != entity.ErrKindValidation || resp.Error != "Please provide a valid description." {
		t.Fatalf("unexpected rejection %+v", resp)
	}
	if gen.callCount() != 1 {
		t.Fatalf("expected 1 backend call, got %d", gen.callCount())
	}
}
