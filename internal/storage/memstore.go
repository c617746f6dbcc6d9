package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mjuhl/wortkiste/internal/common"
)

// MemStore is an in-memory ObjectStore used by tests. It keeps a version
// counter per key so conditional writes behave like the real store.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]*memObject

	// FailPut, when set, is consulted before every write; returning a
	// non-nil error makes the write fail. Used to exercise partial-failure
	// paths.
	FailPut func(key string) error
}

type memObject struct {
	body         []byte
	contentType  string
	etag         string
	lastModified time.Time
	version      int
}

var _ ObjectStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]*memObject)}
}

func (m *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	body, _, err := m.GetWithETag(ctx, key)
	return body, err
}

func (m *MemStore) GetWithETag(ctx context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("object %s: %w", key, common.ErrNotFound)
	}
	body := make([]byte, len(obj.body))
	copy(body, obj.body)
	return body, obj.etag, nil
}

func (m *MemStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	return m.PutIf(ctx, key, body, contentType, WriteCondition{})
}

func (m *MemStore) PutIf(ctx context.Context, key string, body []byte, contentType string, cond WriteCondition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPut != nil {
		if err := m.FailPut(key); err != nil {
			return err
		}
	}

	obj, exists := m.objects[key]
	if cond.IfNoneMatch && exists {
		return fmt.Errorf("object %s: %w", key, ErrPreconditionFailed)
	}
	if cond.IfMatch != "" {
		if !exists || obj.etag != cond.IfMatch {
			return fmt.Errorf("object %s: %w", key, ErrPreconditionFailed)
		}
	}

	version := 1
	if exists {
		version = obj.version + 1
	}
	stored := make([]byte, len(body))
	copy(stored, body)
	m.objects[key] = &memObject{
		body:         stored,
		contentType:  contentType,
		etag:         fmt.Sprintf("%q", fmt.Sprintf("%s-v%d", key, version)),
		lastModified: time.Now().UTC(),
		version:      version,
	}
	return nil
}

func (m *MemStore) Head(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, ObjectInfo{
				Key:          key,
				Size:         int64(len(obj.body)),
				LastModified: obj.lastModified,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Keys returns every stored key, sorted. Test helper.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the stored content type for key. Test helper.
func (m *MemStore) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[key]; ok {
		return obj.contentType
	}
	return ""
}

// SetLastModified overrides an object's timestamp. Test helper.
func (m *MemStore) SetLastModified(key string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[key]; ok {
		obj.lastModified = t
	}
}
