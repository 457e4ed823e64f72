package transport

import (
	"embed"
	"html/template"
	"net/http"

	"codegen/internal/domain/entity"
	"codegen/internal/infrastructure/highlight"
	"codegen/internal/infrastructure/metrics"
)

const (
	pageTitle      = "Python Code Generator with CodeLlama"
	resultLanguage = "python"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	Title       string
	ConfigError string
	Description string
	MaxLength   int
	Error       string
	HasResult   bool
	Result      template.HTML
}

func (h *CodegenHandler) newPage() pageData {
	data := pageData{
		Title:     pageTitle,
		MaxLength: entity.MaxDescriptionLength,
	}
	if h.configErr != nil {
		data.ConfigError = entity.DisplayError(h.configErr)
	}
	return data
}

// GET /
func (h *CodegenHandler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, http.StatusOK, h.newPage())
}

// POST /
func (h *CodegenHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		data := h.newPage()
		data.Error = "Could not read the submitted form."
		h.renderPage(w, http.StatusBadRequest, data)
		return
	}

	data := h.newPage()
	data.Description = r.PostFormValue("description")

	gen, err := h.codeService.Generate(r.Context(), data.Description)
	if err != nil && entity.KindOf(err) == entity.ErrKindValidation {
		data.Error = entity.DisplayError(err)
		h.renderPage(w, http.StatusBadRequest, data)
		return
	}

	data.HasResult = true
	if err != nil {
		data.Result = highlight.Plain(gen.Result())
		h.renderPage(w, statusForError(err), data)
		return
	}

	data.Result = h.highlightCode(gen.Code)
	h.renderPage(w, http.StatusOK, data)
}

func (h *CodegenHandler) highlightCode(code string) template.HTML {
	out, err := h.highlighter.HTML(code, resultLanguage)
	if err != nil {
		metrics.IncError("transport", "highlight")
		h.logger.Warn().Err(err).Msg("highlight failed, falling back to plain text")
	}
	return out
}

func (h *CodegenHandler) renderPage(w http.ResponseWriter, code int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := pageTemplate.Execute(w, data); err != nil {
		metrics.IncError("transport", "render")
		h.logger.Error().Err(err).Msg("render page failed")
	}
}
