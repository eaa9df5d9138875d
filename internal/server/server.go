package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Server wraps the gin engine and the underlying http.Server so the
// caller can shut it down cleanly.
type Server struct {
	router *gin.Engine
	server *http.Server
	addr   string
}

func New(addr string, h *Handler) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), CORS())

	router.POST("/upload_pdfs/", h.UploadDocuments)
	router.POST("/process_pdfs/", h.ProcessDocuments)
	router.POST("/ask_question/", h.AskQuestion)
	router.POST("/compare_reports/", h.CompareReports)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &Server{router: router, addr: addr}
}

// Router exposes the engine so tests can drive it with httptest.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start blocks serving requests until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}
	log.Info().Str("addr", s.addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
