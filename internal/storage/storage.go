// Package storage — blob-хранилище артефактов генерации.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// BlobStore — контракт хранилища: загрузка, публичный URL, удаление.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	GetPublicURL(path string) string
	Remove(ctx context.Context, paths []string) error
}

// MemoryBlobStore — хранилище в памяти для тестов и локальной разработки.
type MemoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailUpload заставляет Upload вернуть ошибку (для тестов сбоев
	// стадии сохранения).
	FailUpload bool
}

// NewMemoryBlobStore создает пустое in-memory хранилище.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: make(map[string][]byte)}
}

func (m *MemoryBlobStore) Upload(_ context.Context, path string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpload {
		return fmt.Errorf("upload failed for %s", path)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[path] = cp
	return nil
}

func (m *MemoryBlobStore) GetPublicURL(path string) string {
	return "https://storage.local/" + strings.TrimPrefix(path, "/")
}

func (m *MemoryBlobStore) Remove(_ context.Context, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.objects, p)
	}
	return nil
}

// Object возвращает содержимое объекта (для тестов).
func (m *MemoryBlobStore) Object(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	return b, ok
}

// Len — число сохранённых объектов.
func (m *MemoryBlobStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
