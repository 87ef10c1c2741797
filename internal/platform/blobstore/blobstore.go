// Package blobstore provides object storage for patient documents. Files
// never pass through the API server: clients upload and download directly
// against presigned URLs, and only object keys and metadata live in the
// database.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrEmptyKey       = errors.New("object key is required")
)

// Store issues presigned URLs for direct-to-storage transfers and deletes
// objects when their document records are removed.
type Store interface {
	IssueUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	IssueDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// InMemoryStore is a Store for tests and development. Issued URLs are fake
// but stable, and upload issuance marks the key as present so download and
// delete behave consistently.
type InMemoryStore struct {
	mu   sync.RWMutex
	keys map[string]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{keys: make(map[string]bool)}
}

func (s *InMemoryStore) IssueUploadURL(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	s.mu.Lock()
	s.keys[key] = true
	s.mu.Unlock()
	return fmt.Sprintf("memory://upload/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (s *InMemoryStore) IssueDownloadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	s.mu.RLock()
	ok := s.keys[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrObjectNotFound
	}
	return fmt.Sprintf("memory://download/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.keys[key] {
		return ErrObjectNotFound
	}
	delete(s.keys, key)
	return nil
}
