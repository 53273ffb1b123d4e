// Package server exposes search and stored backgrounds over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/franz/bgdb/internal/content"
	"github.com/franz/bgdb/internal/report"
	"github.com/franz/bgdb/internal/search"
	"github.com/franz/bgdb/internal/util"
)

const (
	// DefaultMaxUpload caps the size of a query image
	DefaultMaxUpload = 20 << 20
	// MaxK is the largest result count a client may request
	MaxK = 50

	requestIDKey = "request_id"
)

// Config holds the dependencies of the HTTP surface
type Config struct {
	Engine    *search.Engine
	Content   content.Store
	Events    *report.EventLogger
	MaxUpload int64
	DefaultK  int
}

// Response is the JSON envelope for every API reply
type Response struct {
	Code  int    `json:"code"`
	Data  any    `json:"data,omitempty"`
	Msg   string `json:"msg"`
	Error string `json:"error,omitempty"`
}

type handler struct {
	engine    *search.Engine
	content   content.Store
	events    *report.EventLogger
	maxUpload int64
	defaultK  int
}

// NewRouter builds the gin engine with all routes registered
func NewRouter(cfg *Config) *gin.Engine {
	h := &handler{
		engine:    cfg.Engine,
		content:   cfg.Content,
		events:    cfg.Events,
		maxUpload: cfg.MaxUpload,
		defaultK:  cfg.DefaultK,
	}
	if h.maxUpload <= 0 {
		h.maxUpload = DefaultMaxUpload
	}
	if h.defaultK <= 0 {
		h.defaultK = search.DefaultK
	}
	if h.events == nil {
		h.events = report.NullLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logger())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, Response{Msg: "ok"}) })

	api := r.Group("/api")
	{
		api.GET("/stats", h.stats)
		api.POST("/search", h.search)
		api.POST("/cache/invalidate", h.invalidate)
	}
	r.GET("/img/:identity", h.image)

	return r
}

func (h *handler) stats(c *gin.Context) {
	stats, err := h.engine.Stats()
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to read stats", err)
		return
	}
	c.JSON(http.StatusOK, Response{Msg: "ok", Data: stats})
}

// invalidate drops the engine's fingerprint cache after an out-of-process index run
func (h *handler) invalidate(c *gin.Context) {
	h.engine.Invalidate()
	c.JSON(http.StatusOK, Response{Msg: "ok"})
}

func (h *handler) search(c *gin.Context) {
	start := time.Now()

	k := h.defaultK
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxK {
			fail(c, http.StatusBadRequest, "k must be between 1 and "+strconv.Itoa(MaxK), nil)
			return
		}
		k = n
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	data, err := h.readQuery(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "query image too large", nil)
			return
		}
		fail(c, http.StatusBadRequest, "failed to read query image", err)
		return
	}
	if len(data) == 0 {
		fail(c, http.StatusBadRequest, "query image is required", nil)
		return
	}

	matches, err := h.engine.Search(c.Request.Context(), data, k)
	if err != nil {
		if search.IsQueryError(err) {
			fail(c, http.StatusBadRequest, "query image could not be decoded", err)
			return
		}
		h.events.LogError(report.EventSearch, c.GetString(requestIDKey), err)
		fail(c, http.StatusInternalServerError, "search failed", err)
		return
	}

	h.events.LogSearch(c.GetString(requestIDKey), k, len(matches), time.Since(start))
	c.JSON(http.StatusOK, Response{Msg: "ok", Data: matches})
}

// readQuery accepts a multipart "image" field or a raw image body
func (h *handler) readQuery(c *gin.Context) ([]byte, error) {
	if c.ContentType() != "multipart/form-data" {
		return io.ReadAll(c.Request.Body)
	}
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *handler) image(c *gin.Context) {
	id := c.Param("identity")
	if !content.ValidIdentity(id) {
		fail(c, http.StatusNotFound, "image not found", nil)
		return
	}

	data, err := h.content.Read(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			fail(c, http.StatusNotFound, "image not found", nil)
			return
		}
		fail(c, http.StatusInternalServerError, "failed to read image", err)
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func fail(c *gin.Context, status int, msg string, err error) {
	res := Response{Code: status, Msg: msg}
	// error detail outside release mode only
	if err != nil && gin.Mode() != gin.ReleaseMode {
		res.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, res)
}

// Serve runs the router on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, router http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.InfoLog("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		util.InfoLog("Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
