package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"report-rag/internal/chromemdb"
	"report-rag/internal/docstore"
	"report-rag/internal/llmservice"
	"report-rag/internal/models"
	"report-rag/internal/rag"
)

// Handler serves the document question-answering endpoints.
type Handler struct {
	store        *docstore.Store
	session      *rag.Session
	orchestrator *rag.Orchestrator
}

func NewHandler(store *docstore.Store, session *rag.Session, orchestrator *rag.Orchestrator) *Handler {
	return &Handler{store: store, session: session, orchestrator: orchestrator}
}

// UploadDocuments stores the posted files.
// POST /upload_pdfs/
func (h *Handler) UploadDocuments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}

	uploaded := make([]gin.H, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("reading %s: %v", fh.Filename, err)})
			return
		}
		entry, err := h.store.Save(fh.Filename, f)
		f.Close()
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		uploaded = append(uploaded, gin.H{"file": entry.Name, "digest": entry.Digest, "bytes": entry.Size})
	}

	c.JSON(http.StatusOK, gin.H{"uploaded": uploaded})
}

// ProcessDocuments builds a fresh index over the selected documents and
// resets the conversation.
// POST /process_pdfs/
func (h *Handler) ProcessDocuments(c *gin.Context) {
	choice := c.PostForm("llm_choice")
	if _, err := llmservice.ParseBackend(choice); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	names := c.PostFormArray("pdf_files")
	result, err := h.orchestrator.Build(c.Request.Context(), h.session, names)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	warnings := result.Warnings
	if warnings == nil {
		warnings = []models.Warning{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "PDFs processed successfully",
		"llm":      choice,
		"session":  result.SessionID,
		"pages":    result.Pages,
		"chunks":   result.Chunks,
		"warnings": warnings,
	})
}

type askRequest struct {
	Question  string `json:"question" binding:"required"`
	LLMChoice string `json:"llm_choice" binding:"required"`
}

// AskQuestion answers one question against the current session.
// POST /ask_question/
func (h *Handler) AskQuestion(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orchestrator.Ask(c.Request.Context(), h.session, req.Question, req.LLMChoice)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":       result.Answer,
		"chat_history": result.History,
		"sources":      result.Citations,
	})
}

// CompareReports summarizes two documents and contrasts them.
// POST /compare_reports/
func (h *Handler) CompareReports(c *gin.Context) {
	choice := c.PostForm("llm_choice")
	names := c.PostFormArray("pdf_files")

	result, err := h.orchestrator.Compare(c.Request.Context(), names, choice)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"comparison": result.Comparison,
		"summaries":  result.Summaries,
	})
}

// statusFor maps the error taxonomy onto status codes: input validation
// and missing-state errors are the caller's fault, everything else is a
// server-side failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrNotReady),
		errors.Is(err, rag.ErrInvalidInput),
		errors.Is(err, rag.ErrNoDocuments),
		errors.Is(err, rag.ErrEmptyQuestion),
		errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, docstore.ErrUnsupportedType),
		errors.Is(err, chromemdb.ErrNoChunks),
		errors.Is(err, llmservice.ErrUnknownBackend):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
