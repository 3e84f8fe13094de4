package unstructured

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"deckrag/src/core/deckchat"
	"deckrag/src/fsutil"
	"deckrag/src/log"
)

const (
	DefaultURL      = "https://api.unstructuredapp.io"
	DefaultStrategy = "fast"

	partitionPath = "/general/v0/general"
	apiKeyHeader  = "unstructured-api-key"
)

type UnstructuredService struct {
	baseURL    string
	apiKey     string
	strategy   string
	files      fsutil.FileStore
	httpClient *http.Client
}

type UnstructuredElement struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	ElementID string   `json:"element_id"`
	Metadata  Metadata `json:"metadata"`
}

type Metadata struct {
	Filename    string      `json:"filename,omitempty"`
	Filetype    string      `json:"filetype,omitempty"`
	PageNumber  int         `json:"page_number,omitempty"`
	Coordinates Coordinates `json:"coordinates,omitempty"`
	TableHTML   string      `json:"text_as_html,omitempty"`
}

type Coordinates struct {
	Points [][]float64 `json:"points"`
	System string      `json:"system"`
}

type Option func(s *UnstructuredService)

// WithStrategy overrides the partition strategy (fast, hi_res, auto).
func WithStrategy(strategy string) Option {
	return func(s *UnstructuredService) {
		s.strategy = strategy
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *UnstructuredService) {
		s.httpClient = c
	}
}

func NewUnstructuredService(baseURL, apiKey string, files fsutil.FileStore, opts ...Option) *UnstructuredService {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	s := &UnstructuredService{
		baseURL:    baseURL,
		apiKey:     apiKey,
		strategy:   DefaultStrategy,
		files:      files,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract partitions the document at filePath and returns its elements in
// document order.
func (s *UnstructuredService) Extract(ctx context.Context, filePath string) ([]deckchat.Element, error) {
	elements, err := s.Partition(ctx, filePath)
	if err != nil {
		return nil, err
	}

	out := make([]deckchat.Element, 0, len(elements))
	for _, el := range elements {
		out = append(out, deckchat.Element{
			Type:       el.Type,
			Text:       el.Text,
			PageNumber: el.Metadata.PageNumber,
			Filename:   el.Metadata.Filename,
		})
	}
	return out, nil
}

// Partition uploads the file to the partition endpoint.
func (s *UnstructuredService) Partition(ctx context.Context, filePath string) ([]UnstructuredElement, error) {
	file, err := s.files.ReadFileAsStream(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer file.Close()

	body, contentType := s.multipartBody(filepath.Base(filePath), file)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+partitionPath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", contentType)
	if s.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, s.apiKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error(fmt.Errorf("partition failed"), "unstructured returned an error", "status", resp.Status, "response", string(msg))
		return nil, fmt.Errorf("partition service error: %s", resp.Status)
	}

	var elements []UnstructuredElement
	if err := json.NewDecoder(resp.Body).Decode(&elements); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}
	log.Debug("document partitioned", "file", filepath.Base(filePath), "elements", len(elements))

	return elements, nil
}

// multipartBody streams the form so large decks are not held in memory.
func (s *UnstructuredService) multipartBody(filename string, file io.Reader) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			fw, err := mw.CreateFormFile("files", filename)
			if err != nil {
				return fmt.Errorf("failed to create form file: %v", err)
			}
			if _, err := io.Copy(fw, file); err != nil {
				return fmt.Errorf("failed to write file content: %v", err)
			}
			if err := mw.WriteField("strategy", s.strategy); err != nil {
				return fmt.Errorf("failed to write strategy: %v", err)
			}
			if err := mw.WriteField("output_format", "application/json"); err != nil {
				return fmt.Errorf("failed to write output format: %v", err)
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}
