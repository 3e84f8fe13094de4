package deck_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckrag/handler/http/deck"
	"deckrag/src/core/deckchat"
	"deckrag/src/fsutil"
)

type fakeService struct {
	initialized bool
	settings    deckchat.Settings
	initErr     error
	ingested    []string
	ingestErr   error
	askErr      error
	fragments   []deckchat.Fragment
	forgetErr   error
	forgotten   []string
}

func (s *fakeService) Initialize(ctx context.Context, settings deckchat.Settings) error {
	if s.initErr != nil {
		return s.initErr
	}
	s.settings = settings
	s.initialized = true
	return nil
}

func (s *fakeService) Initialized() bool { return s.initialized }

func (s *fakeService) Ingest(ctx context.Context, userID, filePath string, opts ...deckchat.IngestOption) (*deckchat.IngestResult, error) {
	if s.ingestErr != nil {
		return nil, s.ingestErr
	}
	s.ingested = append(s.ingested, filePath)
	return &deckchat.IngestResult{DocumentID: 7, ChunkCount: 3, Questions: []string{"What was Q3 revenue?"}}, nil
}

func (s *fakeService) Ask(ctx context.Context, userID, question string) (<-chan deckchat.Fragment, error) {
	if s.askErr != nil {
		return nil, s.askErr
	}
	ch := make(chan deckchat.Fragment, len(s.fragments))
	for _, f := range s.fragments {
		ch <- f
	}
	close(ch)
	return ch, nil
}

func (s *fakeService) Forget(ctx context.Context, userID string) error {
	if s.forgetErr != nil {
		return s.forgetErr
	}
	s.forgotten = append(s.forgotten, userID)
	return nil
}

func newRouter(t *testing.T, svc *fakeService) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()

	r := gin.New()
	r.Use(deck.CORS([]string{"http://localhost:5173"}))
	deck.NewHandler(svc, fsutil.NewLocalFileStore(), root, 0).RegisterRoutes(r)
	return r, root
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRootAndHealth(t *testing.T) {
	r, _ := newRouter(t, &fakeService{initialized: true})

	w := doJSON(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["initialized"])
}

func TestInitialize(t *testing.T) {
	svc := &fakeService{}
	r, _ := newRouter(t, svc)

	w := doJSON(r, http.MethodPost, "/initialize", map[string]string{"api_key": " sk-test ", "unstructured_api_key": "un-test"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sk-test", svc.settings.APIKey)
	assert.Equal(t, "un-test", svc.settings.ExtractionAPIKey)
	assert.Equal(t, "gpt-4o-mini", svc.settings.Model)

	svc.initErr = fmt.Errorf("%w: api key is required", deckchat.ErrConfig)
	w = doJSON(r, http.MethodPost, "/initialize", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, w)["code"])
}

func uploadRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadAndEmbed(t *testing.T) {
	svc := &fakeService{initialized: true}
	r, root := newRouter(t, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "/upload?user_id=u1", "../Quarterly.PPTX", []byte("PK deck")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	filePath := decode(t, w)["file_path"].(string)
	assert.True(t, strings.HasPrefix(filePath, filepath.Join(root, "u1")+string(filepath.Separator)))
	assert.True(t, strings.HasSuffix(filePath, "_Quarterly.PPTX"))
	content, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "PK deck", string(content))

	w = doJSON(r, http.MethodPost, "/embed", map[string]string{"file_path": filePath, "user_id": "u1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, "Document embedded successfully", out["message"])
	assert.Equal(t, []any{"What was Q3 revenue?"}, out["queries"])
	assert.Equal(t, []string{filePath}, svc.ingested)
}

func TestUploadRejects(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		filename string
	}{
		{name: "wrong extension", path: "/upload?user_id=u1", filename: "report.pdf"},
		{name: "missing user", path: "/upload", filename: "deck.pptx"},
		{name: "bad user", path: "/upload?user_id=..%2Fu1", filename: "deck.pptx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRouter(t, &fakeService{initialized: true})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, uploadRequest(t, tt.path, tt.filename, []byte("x")))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestEmbedErrors(t *testing.T) {
	tests := []struct {
		name       string
		ingestErr  error
		userID     string
		filePath   func(root string) string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "outside upload directory",
			userID:     "u1",
			filePath:   func(root string) string { return "/etc/passwd.pptx" },
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "another user's upload",
			userID:     "u1",
			filePath:   func(root string) string { return filepath.Join(root, "u2", "deck.pptx") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "not initialized",
			ingestErr:  deckchat.ErrUninitialized,
			userID:     "u1",
			filePath:   func(root string) string { return filepath.Join(root, "u1", "deck.pptx") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "NOT_INITIALIZED",
		},
		{
			name:       "embedder down",
			ingestErr:  fmt.Errorf("%w: embed: 503", deckchat.ErrEmbedderUnavailable),
			userID:     "u1",
			filePath:   func(root string) string { return filepath.Join(root, "u1", "deck.pptx") },
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_UNAVAILABLE",
		},
		{
			name:       "timeout",
			ingestErr:  fmt.Errorf("%w: suggest questions", deckchat.ErrTimeout),
			userID:     "u1",
			filePath:   func(root string) string { return filepath.Join(root, "u1", "deck.pptx") },
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, root := newRouter(t, &fakeService{initialized: true, ingestErr: tt.ingestErr})
			w := doJSON(r, http.MethodPost, "/embed", map[string]string{"file_path": tt.filePath(root), "user_id": tt.userID})
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decode(t, w)["code"])
		})
	}
}

func TestChatStreams(t *testing.T) {
	svc := &fakeService{initialized: true, fragments: []deckchat.Fragment{
		{Text: "Q3 revenue "},
		{Text: "was $5M."},
	}}
	r, _ := newRouter(t, svc)

	w := doJSON(r, http.MethodPost, "/chat", map[string]string{"question": "What was Q3 revenue?", "user_id": "u1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "Q3 revenue was $5M.", w.Body.String())
}

func TestChatInBandError(t *testing.T) {
	svc := &fakeService{initialized: true, fragments: []deckchat.Fragment{
		{Text: "Error: No document has been embedded for user u1. Please upload and embed a document first.", Err: deckchat.ErrNotFound},
	}}
	r, _ := newRouter(t, svc)

	w := doJSON(r, http.MethodPost, "/chat", map[string]string{"question": "Anything?", "user_id": "u1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Error: No document has been embedded for user u1"))
}

func TestChatRejectsBeforeStreaming(t *testing.T) {
	r, _ := newRouter(t, &fakeService{askErr: deckchat.ErrUninitialized})

	w := doJSON(r, http.MethodPost, "/chat", map[string]string{"question": "Anything?", "user_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NOT_INITIALIZED", decode(t, w)["code"])
}

func TestDeleteVectorstore(t *testing.T) {
	svc := &fakeService{initialized: true}
	r, _ := newRouter(t, svc)

	w := doJSON(r, http.MethodDelete, "/delete_vectorstore/u1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"u1"}, svc.forgotten)

	svc.forgetErr = fmt.Errorf("%w for user u2", deckchat.ErrNotFound)
	w = doJSON(r, http.MethodDelete, "/delete_vectorstore/u2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w)["code"])
}

func TestCORS(t *testing.T) {
	r, _ := newRouter(t, &fakeService{})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", w.Header().Get("Access-Control-Allow-Headers"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
