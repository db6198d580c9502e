package querycache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryItem struct {
	entry   *Entry
	expires time.Time
}

// MemoryStore keeps up to size entries in process. Entries expire after the
// shorter of the store retention and the ttl passed to Set.
type MemoryStore struct {
	lru       *expirable.LRU[string, memoryItem]
	retention time.Duration
	now       func() time.Time
}

func NewMemoryStore(size int, retention time.Duration) *MemoryStore {
	if size < 1 {
		size = 1
	}
	return &MemoryStore{
		lru:       expirable.NewLRU[string, memoryItem](size, nil, retention),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	item, ok := s.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if !item.expires.IsZero() && !s.now().Before(item.expires) {
		s.lru.Remove(key)
		return nil, ErrMiss
	}
	return item.entry, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	item := memoryItem{entry: entry}
	if ttl > 0 && (s.retention <= 0 || ttl < s.retention) {
		item.expires = s.now().Add(ttl)
	}
	s.lru.Add(key, item)
	return nil
}

func (s *MemoryStore) Purge(context.Context) error {
	s.lru.Purge()
	return nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}

func (s *MemoryStore) Close() error {
	s.lru.Purge()
	return nil
}
