package deck

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"deckrag/src/core/deckchat"
	"deckrag/src/fsutil"
)

// DeckService is the pipeline behind the HTTP surface.
type DeckService interface {
	Initialize(ctx context.Context, settings deckchat.Settings) error
	Initialized() bool
	Ingest(ctx context.Context, userID, filePath string, opts ...deckchat.IngestOption) (*deckchat.IngestResult, error)
	Ask(ctx context.Context, userID, question string) (<-chan deckchat.Fragment, error)
	Forget(ctx context.Context, userID string) error
}

const DefaultMaxUploadBytes = 100 << 20

type Handler struct {
	svc            DeckService
	files          fsutil.FileStore
	uploadRoot     string
	maxUploadBytes int64
}

func NewHandler(svc DeckService, files fsutil.FileStore, uploadRoot string, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		svc:            svc,
		files:          files,
		uploadRoot:     uploadRoot,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.POST("/initialize", h.Initialize)
	r.POST("/upload", h.Upload)
	r.POST("/embed", h.Embed)
	r.POST("/chat", h.Chat)
	r.DELETE("/delete_vectorstore/:user_id", h.DeleteVectorstore)
}

// Common error response structure
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func sendError(c *gin.Context, status int, err error) {
	code := "INTERNAL_ERROR"
	switch {
	case errors.Is(err, deckchat.ErrUninitialized):
		code = "NOT_INITIALIZED"
		status = http.StatusBadRequest
	case errors.Is(err, deckchat.ErrValidation), errors.Is(err, deckchat.ErrConfig):
		code = "INVALID_REQUEST"
		status = http.StatusBadRequest
	case errors.Is(err, deckchat.ErrNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, deckchat.ErrTimeout):
		code = "TIMEOUT"
		status = http.StatusGatewayTimeout
	case errors.Is(err, deckchat.ErrExtraction),
		errors.Is(err, deckchat.ErrEmbedderUnavailable),
		errors.Is(err, deckchat.ErrModelUnavailable):
		code = "UPSTREAM_UNAVAILABLE"
		status = http.StatusBadGateway
	case status == http.StatusBadRequest:
		code = "INVALID_REQUEST"
	default:
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// CORS allows browser calls from the given origins.
func CORS(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed[origin] || allowed["*"]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if c.Request.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				if reqHeaders := c.GetHeader("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				h.Set("Access-Control-Max-Age", "600")
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
		}
		c.Next()
	}
}
