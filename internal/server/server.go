// Package server exposes the retrieval and RAG pipeline over HTTP.
package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/taleemlabs/taleemd/internal/rag"
	"github.com/taleemlabs/taleemd/internal/retriever"
	"github.com/taleemlabs/taleemd/internal/sanitize"
	"github.com/taleemlabs/taleemd/internal/vectordb"
)

// Server wires the HTTP routes to the retriever, the RAG engine, and the
// vector database.
type Server struct {
	echo   *echo.Echo
	store  *retriever.Store
	engine *rag.Engine
	db     *vectordb.Service
	logger *zap.Logger
}

// New creates the HTTP server and registers all routes.
func New(store *retriever.Store, engine *rag.Engine, db *vectordb.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	s := &Server{
		echo:   e,
		store:  store,
		engine: engine,
		db:     db,
		logger: logger,
	}

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/search", s.search)
	api.GET("/search/topic", s.searchTopic)
	api.GET("/context", s.answerContext)
	api.POST("/documents/text", s.addText)
	api.POST("/documents/pdf", s.addPDF)

	ragGroup := api.Group("/rag")
	ragGroup.GET("/collections", s.listCollections)
	ragGroup.GET("/collections/:name", s.collectionStats)
	ragGroup.POST("/collections/:name/documents", s.indexDocuments)
	ragGroup.POST("/query", s.query)

	return s
}

// Start begins serving on addr and blocks until shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server starting", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP makes the server usable as a plain http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type searchResult struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	SourceType string  `json:"source_type"`
	Score      float64 `json:"score"`
}

func (s *Server) search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	topK := queryInt(c, "top_k", 5)
	minScore, err := strconv.ParseFloat(c.QueryParam("min_score"), 64)
	if err != nil {
		minScore = 0
	}

	scored := s.store.Search(query, topK, minScore)
	results := make([]searchResult, len(scored))
	for i, sd := range scored {
		results[i] = searchResult{
			Content:    sd.Document.Content,
			Source:     sd.Document.Source,
			SourceType: string(sd.Document.SourceType),
			Score:      sd.Score,
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
	})
}

func (s *Server) searchTopic(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter name is required")
	}
	grade := queryInt(c, "grade", 0)

	docs := s.store.SearchByTopic(name, grade)
	results := make([]searchResult, len(docs))
	for i, doc := range docs {
		results[i] = searchResult{
			Content:    doc.Content,
			Source:     doc.Source,
			SourceType: string(doc.SourceType),
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"topic":   name,
		"results": results,
	})
}

func (s *Server) answerContext(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}
	topK := queryInt(c, "top_k", 3)

	return c.JSON(http.StatusOK, map[string]string{
		"query":   query,
		"context": s.store.AnswerContext(query, topK),
	})
}

type addTextRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

func (s *Server) addText(c echo.Context) error {
	var req addTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	if req.Source == "" {
		req.Source = "uploaded_text"
	}

	before := s.store.Len()
	s.store.AddText(req.Text, req.Source)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"source": req.Source,
		"chunks": s.store.Len() - before,
	})
}

func (s *Server) addPDF(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field file is required")
	}

	// Client-supplied filenames can carry traversal sequences.
	filename, err := sanitize.SafeBasename(file.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filename")
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "opening upload")
	}
	defer src.Close()

	// Extraction works on files, so the upload is staged to disk first.
	tmpDir, err := os.MkdirTemp("", "taleemd_upload_")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "staging upload")
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, filename)
	dst, err := os.Create(tmpPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "staging upload")
	}
	if _, err := dst.ReadFrom(src); err != nil {
		dst.Close()
		return echo.NewHTTPError(http.StatusInternalServerError, "staging upload")
	}
	if err := dst.Close(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "staging upload")
	}

	before := s.store.Len()
	if err := s.store.AddPDF(c.Request().Context(), tmpPath, filename); err != nil {
		s.logger.Warn("pdf ingestion failed",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "could not extract text from pdf")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"source": filename,
		"chunks": s.store.Len() - before,
	})
}

func (s *Server) listCollections(c echo.Context) error {
	names, err := s.db.ListCollections(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"collections": names})
}

func (s *Server) collectionStats(c echo.Context) error {
	stats, err := s.db.Stats(c.Request().Context(), c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "collection not found")
	}
	return c.JSON(http.StatusOK, stats)
}

type indexRequest struct {
	Documents []rag.Document `json:"documents"`
}

func (s *Server) indexDocuments(c echo.Context) error {
	var req indexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents are required")
	}

	if err := s.engine.IndexDocuments(c.Request().Context(), c.Param("name"), req.Documents); err != nil {
		s.logger.Error("indexing failed",
			zap.String("collection", c.Param("name")),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "indexing failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"collection": c.Param("name"),
		"indexed":    len(req.Documents),
	})
}

type queryRequest struct {
	Collection string `json:"collection"`
	Question   string `json:"question"`
	TopK       int    `json:"top_k"`
}

func (s *Server) query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Collection == "" || req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "collection and question are required")
	}
	if req.TopK <= 0 {
		req.TopK = 3
	}

	resp, err := s.engine.Query(c.Request().Context(), req.Collection, req.Question, req.TopK)
	if err != nil {
		s.logger.Error("rag query failed",
			zap.String("collection", req.Collection),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}
	return c.JSON(http.StatusOK, resp)
}

func queryInt(c echo.Context, name string, fallback int) int {
	value, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
