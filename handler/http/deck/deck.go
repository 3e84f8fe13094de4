package deck

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"deckrag/src/core/deckchat"
	"deckrag/src/log"
)

func (h *Handler) Root(c *gin.Context) {
	sendJSON(c, http.StatusOK, gin.H{"message": "deckrag"})
}

func (h *Handler) Health(c *gin.Context) {
	sendJSON(c, http.StatusOK, gin.H{
		"status":      "ok",
		"initialized": h.svc.Initialized(),
	})
}

type initializeRequest struct {
	Provider           string `json:"provider"`
	Model              string `json:"model"`
	EmbeddingModel     string `json:"embedding_model"`
	APIKey             string `json:"api_key"`
	UnstructuredAPIKey string `json:"unstructured_api_key"`
}

func (h *Handler) Initialize(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	settings := deckchat.Settings{
		Provider:         req.Provider,
		Model:            req.Model,
		EmbeddingModel:   req.EmbeddingModel,
		APIKey:           req.APIKey,
		ExtractionAPIKey: req.UnstructuredAPIKey,
	}.Normalize()
	if err := h.svc.Initialize(c.Request.Context(), settings); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, gin.H{
		"message": fmt.Sprintf("LLM and embeddings initialized successfully with %s", settings.Provider),
	})
}

// Upload stores a presentation under the user's upload directory and returns its path.
func (h *Handler) Upload(c *gin.Context) {
	userID := c.Query("user_id")
	if err := deckchat.ValidateUserID(userID); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("%w: file is required: %v", deckchat.ErrValidation, err))
		return
	}

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), deckchat.SupportedExtension) {
		sendError(c, http.StatusBadRequest, fmt.Errorf("%w: only %s files are allowed", deckchat.ErrValidation, deckchat.SupportedExtension))
		return
	}

	file, err := header.Open()
	if err != nil {
		sendError(c, http.StatusInternalServerError, fmt.Errorf("failed to open upload: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		sendError(c, http.StatusInternalServerError, fmt.Errorf("failed to read upload: %v", err))
		return
	}

	dir := filepath.Join(h.uploadRoot, userID)
	if err := h.files.MakeDirectory(dir); err != nil {
		sendError(c, http.StatusInternalServerError, fmt.Errorf("failed to create upload directory: %v", err))
		return
	}
	filePath := filepath.Join(dir, uuid.NewString()+"_"+name)
	if err := h.files.WriteFile(filePath, data); err != nil {
		sendError(c, http.StatusInternalServerError, fmt.Errorf("failed to save upload: %v", err))
		return
	}

	log.Info("file uploaded", "user_id", userID, "file_path", filePath, "bytes", len(data))
	sendJSON(c, http.StatusOK, gin.H{
		"message":   "File uploaded successfully",
		"file_path": filePath,
	})
}

type embedRequest struct {
	FilePath string `json:"file_path"`
	UserID   string `json:"user_id"`
}

func (h *Handler) Embed(c *gin.Context) {
	var req embedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}
	if err := deckchat.ValidateUserID(req.UserID); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}
	if !h.ownsUpload(req.UserID, req.FilePath) {
		sendError(c, http.StatusBadRequest, fmt.Errorf("%w: invalid file path %s", deckchat.ErrValidation, req.FilePath))
		return
	}

	result, err := h.svc.Ingest(c.Request.Context(), req.UserID, req.FilePath)
	if err != nil {
		log.Error(err, "failed to embed document", "user_id", req.UserID)
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, gin.H{
		"message":     "Document embedded successfully",
		"queries":     result.Questions,
		"document_id": result.DocumentID,
		"chunk_count": result.ChunkCount,
	})
}

// ownsUpload reports whether filePath lies in the user's upload directory.
func (h *Handler) ownsUpload(userID, filePath string) bool {
	if filePath == "" {
		return false
	}
	dir, err := filepath.Abs(filepath.Join(h.uploadRoot, userID))
	if err != nil {
		return false
	}
	p, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

type chatRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
}

// Chat streams the answer as plain text. Failures after the stream started
// arrive as a final "Error: ..." line of the body.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	stream, err := h.svc.Ask(c.Request.Context(), req.UserID, req.Question)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)
	for f := range stream {
		if _, err := io.WriteString(c.Writer, f.Text); err != nil {
			return
		}
		c.Writer.Flush()
		if f.Err != nil {
			return
		}
	}
}

func (h *Handler) DeleteVectorstore(c *gin.Context) {
	userID := c.Param("user_id")
	if err := h.svc.Forget(c.Request.Context(), userID); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, gin.H{
		"message": fmt.Sprintf("Vectorstore deleted successfully for user %s", userID),
	})
}
