package deckchat

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
)

// IndexStore maps a user to the durable copy of that user's index.
// Operations on different users are independent; concurrent writes for the
// same user are last-writer-wins.
type IndexStore interface {
	// Persist replaces any index stored for userID.
	Persist(ctx context.Context, userID string, ix *VectorIndex) error
	// Load fails with ErrNotFound or ErrCorrupt.
	Load(ctx context.Context, userID string) (*VectorIndex, error)
	// Delete fails with ErrNotFound when nothing is stored.
	Delete(ctx context.Context, userID string) error
}

// Blobs is byte-level durable storage keyed by an opaque path. Get and Delete
// return an error matching fs.ErrNotExist for a missing key.
type Blobs interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

const (
	DefaultIndexPrefix = "vectorstore"
	indexFileName      = "index.json"
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateUserID rejects ids that are empty or unsafe to use as a storage key.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !userIDPattern.MatchString(userID) {
		return fmt.Errorf("%w: user id %q must match %s", ErrValidation, userID, userIDPattern)
	}
	return nil
}

// BlobIndexStore keeps one serialized index per user in a Blobs backend.
type BlobIndexStore struct {
	blobs  Blobs
	prefix string
}

func NewBlobIndexStore(blobs Blobs, prefix string) *BlobIndexStore {
	if prefix == "" {
		prefix = DefaultIndexPrefix
	}
	return &BlobIndexStore{
		blobs:  blobs,
		prefix: prefix,
	}
}

func (s *BlobIndexStore) key(userID string) string {
	return path.Join(s.prefix, userID, indexFileName)
}

func (s *BlobIndexStore) Persist(ctx context.Context, userID string, ix *VectorIndex) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	data, err := EncodeIndex(ix)
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, s.key(userID), data); err != nil {
		return fmt.Errorf("failed to persist index for user %s: %w", userID, err)
	}
	return nil
}

func (s *BlobIndexStore) Load(ctx context.Context, userID string) (*VectorIndex, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(ctx, s.key(userID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w for user %s", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to read index for user %s: %w", userID, err)
	}
	ix, err := DecodeIndex(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load index for user %s: %w", userID, err)
	}
	return ix, nil
}

func (s *BlobIndexStore) Delete(ctx context.Context, userID string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, s.key(userID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w for user %s", ErrNotFound, userID)
		}
		return fmt.Errorf("failed to delete index for user %s: %w", userID, err)
	}
	return nil
}
