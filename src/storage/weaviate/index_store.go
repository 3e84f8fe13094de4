package weaviate

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/weaviate/weaviate/entities/models"

	"deckrag/src/core/deckchat"
	"deckrag/src/log"
)

const (
	classPrefix = "Deck_"
	batchSize   = 100
	pageSize    = 100
)

var chunkFields = []string{"text", "order", "start", "end", "elements", "slides"}

var chunkProperties = []*models.Property{
	{Name: "text", DataType: []string{"text"}},
	{Name: "order", DataType: []string{"int"}},
	{Name: "start", DataType: []string{"int"}},
	{Name: "end", DataType: []string{"int"}},
	{Name: "elements", DataType: []string{"int[]"}},
	{Name: "slides", DataType: []string{"int[]"}},
}

// indexHeader is stored as the class description.
type indexHeader struct {
	Metric         deckchat.Metric `json:"metric"`
	Dimension      int             `json:"dimension"`
	EmbeddingModel string          `json:"embedding_model,omitempty"`
	ChunkCount     int             `json:"chunk_count"`
	CreatedAt      time.Time       `json:"created_at"`
}

// IndexStore keeps every user's index in Weaviate. Each persist writes a new
// generation class named ClassName(user)_<generation>; older generations are
// dropped only once the new one holds every chunk. Vectors are supplied by
// the caller, the classes have no vectorizer.
type IndexStore struct {
	sdk *SDK
	now func() time.Time
}

func NewIndexStore(sdk *SDK) *IndexStore {
	return &IndexStore{sdk: sdk, now: time.Now}
}

// ClassName maps a user id to a valid, collision free class name prefix.
func ClassName(userID string) string {
	return classPrefix + hex.EncodeToString([]byte(userID))
}

func generationClass(userID string, generation int64) string {
	return fmt.Sprintf("%s_%d", ClassName(userID), generation)
}

type generation struct {
	class  *models.Class
	number int64
}

// generations lists the user's index classes, newest first.
func (s *IndexStore) generations(ctx context.Context, userID string) ([]generation, error) {
	prefix := ClassName(userID) + "_"
	classes, err := s.sdk.ListClasses(ctx, prefix)
	if err != nil {
		return nil, err
	}

	gens := make([]generation, 0, len(classes))
	for _, class := range classes {
		n, err := strconv.ParseInt(strings.TrimPrefix(class.Class, prefix), 10, 64)
		if err != nil {
			continue
		}
		gens = append(gens, generation{class: class, number: n})
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].number > gens[j].number })
	return gens, nil
}

func (s *IndexStore) Persist(ctx context.Context, userID string, ix *deckchat.VectorIndex) error {
	if err := deckchat.ValidateUserID(userID); err != nil {
		return err
	}

	previous, err := s.generations(ctx, userID)
	if err != nil {
		return err
	}
	next := s.now().UnixNano()
	if len(previous) > 0 && next <= previous[0].number {
		next = previous[0].number + 1
	}
	className := generationClass(userID, next)

	header, err := json.Marshal(indexHeader{
		Metric:         ix.Metric,
		Dimension:      ix.Dimension,
		EmbeddingModel: ix.EmbeddingModel,
		ChunkCount:     len(ix.Chunks),
		CreatedAt:      ix.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode index header: %w", err)
	}
	if err := s.sdk.CreateSchema(ctx, className, string(header), chunkProperties, "none"); err != nil {
		return err
	}

	objects := make([]VectorObject, len(ix.Chunks))
	for i, c := range ix.Chunks {
		objects[i] = chunkObject(c)
	}
	for from := 0; from < len(objects); from += batchSize {
		to := min(from+batchSize, len(objects))
		if err := s.sdk.BatchAddVectors(ctx, className, objects[from:to]); err != nil {
			s.drop(context.WithoutCancel(ctx), className)
			return fmt.Errorf("failed to persist index for user %s: %w", userID, err)
		}
	}

	for _, g := range previous {
		s.drop(ctx, g.class.Class)
	}

	log.Debug("index stored in weaviate", "class", className, "chunks", len(objects))
	return nil
}

// drop removes a class that is no longer served. A class left behind is
// ignored by Load once a newer complete generation exists.
func (s *IndexStore) drop(ctx context.Context, className string) {
	if err := s.sdk.DeleteSchema(ctx, className); err != nil {
		log.Error(err, "failed to drop index class", "class", className)
	}
}

// Load returns the newest complete generation of the user's index. Incomplete
// generations, left by an interrupted persist, are skipped.
func (s *IndexStore) Load(ctx context.Context, userID string) (*deckchat.VectorIndex, error) {
	if err := deckchat.ValidateUserID(userID); err != nil {
		return nil, err
	}

	gens, err := s.generations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(gens) == 0 {
		return nil, fmt.Errorf("%w for user %s", deckchat.ErrNotFound, userID)
	}

	var corrupt error
	for _, g := range gens {
		ix, err := s.loadClass(ctx, g.class)
		if err == nil {
			return ix, nil
		}
		if !errors.Is(err, deckchat.ErrCorrupt) {
			return nil, err
		}
		log.Debug("skipping unusable index class", "class", g.class.Class, "error", err.Error())
		if corrupt == nil {
			corrupt = err
		}
	}
	return nil, corrupt
}

func (s *IndexStore) loadClass(ctx context.Context, class *models.Class) (*deckchat.VectorIndex, error) {
	var header indexHeader
	if err := json.Unmarshal([]byte(class.Description), &header); err != nil {
		return nil, fmt.Errorf("%w: class %s header: %v", deckchat.ErrCorrupt, class.Class, err)
	}

	objects, err := s.sdk.ListObjects(ctx, class.Class, chunkFields, pageSize)
	if err != nil {
		return nil, err
	}
	if len(objects) != header.ChunkCount {
		return nil, fmt.Errorf("%w: class %s holds %d of %d chunks", deckchat.ErrCorrupt, class.Class, len(objects), header.ChunkCount)
	}

	ix := &deckchat.VectorIndex{
		Metric:         header.Metric,
		Dimension:      header.Dimension,
		EmbeddingModel: header.EmbeddingModel,
		CreatedAt:      header.CreatedAt,
		Chunks:         make([]deckchat.EmbeddedChunk, 0, len(objects)),
	}
	for _, obj := range objects {
		c, err := chunkFromObject(obj)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", deckchat.ErrCorrupt, err)
		}
		ix.Chunks = append(ix.Chunks, c)
	}
	sort.Slice(ix.Chunks, func(i, j int) bool { return ix.Chunks[i].Order < ix.Chunks[j].Order })

	if err := ix.Validate(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Delete drops every generation of the user's index.
func (s *IndexStore) Delete(ctx context.Context, userID string) error {
	if err := deckchat.ValidateUserID(userID); err != nil {
		return err
	}

	gens, err := s.generations(ctx, userID)
	if err != nil {
		return err
	}
	if len(gens) == 0 {
		return fmt.Errorf("%w for user %s", deckchat.ErrNotFound, userID)
	}
	for _, g := range gens {
		if err := s.sdk.DeleteSchema(ctx, g.class.Class); err != nil {
			return err
		}
	}
	return nil
}

func chunkObject(c deckchat.EmbeddedChunk) VectorObject {
	return VectorObject{
		Vector: c.Vector,
		Properties: map[string]interface{}{
			"text":     c.Text,
			"order":    c.Order,
			"start":    c.Start,
			"end":      c.End,
			"elements": c.Elements,
			"slides":   c.Slides,
		},
	}
}

func chunkFromObject(obj ObjectResult) (deckchat.EmbeddedChunk, error) {
	text, ok := obj.Properties["text"].(string)
	if !ok {
		return deckchat.EmbeddedChunk{}, fmt.Errorf("object %s has no text", obj.ID)
	}

	c := deckchat.EmbeddedChunk{
		Chunk: deckchat.Chunk{
			Text:     text,
			Order:    intProperty(obj.Properties["order"]),
			Start:    intProperty(obj.Properties["start"]),
			End:      intProperty(obj.Properties["end"]),
			Elements: intsProperty(obj.Properties["elements"]),
			Slides:   intsProperty(obj.Properties["slides"]),
		},
		Vector: obj.Vector,
	}
	return c, nil
}

func intProperty(v interface{}) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}

func intsProperty(v interface{}) []int {
	values, ok := v.([]interface{})
	if !ok || len(values) == 0 {
		return nil
	}
	out := make([]int, len(values))
	for i, x := range values {
		out[i] = intProperty(x)
	}
	return out
}
