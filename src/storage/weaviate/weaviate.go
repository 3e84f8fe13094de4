package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// SDK encapsulates all Weaviate operations
type SDK struct {
	client *weaviate.Client
}

// NewSDK creates a new instance of SDK
func NewSDK(client *weaviate.Client) *SDK {
	return &SDK{
		client: client,
	}
}

// NewClient connects to a Weaviate instance at host, e.g. "localhost:8080".
func NewClient(scheme, host string) (*weaviate.Client, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Scheme: scheme,
		Host:   host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %v", err)
	}
	return client, nil
}

// CreateSchema creates a new class schema in Weaviate
func (w *SDK) CreateSchema(ctx context.Context, className, description string, properties []*models.Property, vectorizer string) error {
	// Check if class already exists
	class, err := w.GetClass(ctx, className)
	if err != nil {
		return fmt.Errorf("failed to check if class exists: %v", err)
	}
	if class != nil {
		return fmt.Errorf("class %s already exists", className)
	}

	class = &models.Class{
		Class:       className,
		Description: description,
		Properties:  properties,
		Vectorizer:  vectorizer,
	}

	err = w.client.Schema().ClassCreator().WithClass(class).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate class: %v", err)
	}

	return nil
}

// GetClass returns the class schema, or nil when the class does not exist.
func (w *SDK) GetClass(ctx context.Context, className string) (*models.Class, error) {
	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %v", err)
	}

	for _, class := range schema.Classes {
		if strings.EqualFold(class.Class, className) {
			return class, nil
		}
	}

	return nil, nil
}

// ListClasses returns the classes whose name starts with prefix.
func (w *SDK) ListClasses(ctx context.Context, prefix string) ([]*models.Class, error) {
	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %v", err)
	}

	var classes []*models.Class
	for _, class := range schema.Classes {
		if strings.HasPrefix(class.Class, prefix) {
			classes = append(classes, class)
		}
	}
	return classes, nil
}

// DeleteSchema deletes a class schema from Weaviate
func (w *SDK) DeleteSchema(ctx context.Context, className string) error {
	err := w.client.Schema().ClassDeleter().WithClassName(className).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete Weaviate class: %v", err)
	}

	return nil
}

// VectorObject represents a single object with its vector and properties
type VectorObject struct {
	Vector     []float32
	Properties map[string]interface{}
}

// BatchAddVectors adds multiple vector objects to a class in a single operation
func (w *SDK) BatchAddVectors(ctx context.Context, className string, objects []VectorObject) error {
	objs := make([]*models.Object, len(objects))
	for i, obj := range objects {
		objs[i] = &models.Object{
			Class:      className,
			Properties: obj.Properties,
			Vector:     obj.Vector,
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch add vectors: %v", err)
	}
	if len(resp) != len(objs) {
		return fmt.Errorf("batch operation returned %d results for %d objects", len(resp), len(objs))
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("failed to add vector: %s", r.Result.Errors.Error[0].Message)
		}
	}

	return nil
}

// ObjectResult is an object read back with its stored vector
type ObjectResult struct {
	ID         string
	Vector     []float32
	Properties map[string]interface{}
}

// ListObjects returns every object of a class with its vector. Objects are
// read in pages of pageSize using the id cursor, so the result is not bounded
// by the query limit of the server.
func (w *SDK) ListObjects(ctx context.Context, className string, fieldNames []string, pageSize int) ([]ObjectResult, error) {
	fields := make([]graphql.Field, len(fieldNames))
	for i, field := range fieldNames {
		fields[i] = graphql.Field{Name: field}
	}
	fields = append(fields, graphql.Field{Name: "_additional { id vector }"})

	var (
		results []ObjectResult
		after   string
	)
	for {
		query := w.client.GraphQL().Get().
			WithClassName(className).
			WithFields(fields...).
			WithLimit(pageSize)
		if after != "" {
			query = query.WithAfter(after)
		}

		result, err := query.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %v", err)
		}
		if len(result.Errors) > 0 {
			return nil, fmt.Errorf("failed to list objects: %s", result.Errors[0].Message)
		}

		page, err := parseObjects(result.Data, className)
		if err != nil {
			return nil, err
		}
		results = append(results, page...)
		if len(page) < pageSize {
			return results, nil
		}

		last := page[len(page)-1].ID
		if last == "" || last == after {
			return nil, fmt.Errorf("failed to list objects: cursor did not advance past %q", after)
		}
		after = last
	}
}

func parseObjects(data map[string]models.JSONObject, className string) ([]ObjectResult, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return nil, nil
	}

	results := make([]ObjectResult, 0, len(objects))
	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected object %T", obj)
		}
		additional, _ := objMap["_additional"].(map[string]interface{})

		properties := make(map[string]interface{})
		for k, v := range objMap {
			if k != "_additional" {
				properties[k] = v
			}
		}

		id, _ := additional["id"].(string)
		vector, err := toFloat32s(additional["vector"])
		if err != nil {
			return nil, fmt.Errorf("object %s: %v", id, err)
		}
		results = append(results, ObjectResult{
			ID:         id,
			Vector:     vector,
			Properties: properties,
		})
	}

	return results, nil
}

func toFloat32s(v interface{}) ([]float32, error) {
	values, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("vector is %T", v)
	}
	out := make([]float32, len(values))
	for i, x := range values {
		f, ok := x.(float64)
		if !ok {
			return nil, fmt.Errorf("vector component %d is %T", i, x)
		}
		out[i] = float32(f)
	}
	return out, nil
}
