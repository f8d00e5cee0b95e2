package cache

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Memcache is a Cache shared across processes. Values are JSON encoded and
// keys are namespaced by prefix.
type Memcache[T any] struct {
	client *memcache.Client
	prefix string
	ttl    time.Duration
}

var _ Cache[int] = (*Memcache[int])(nil)

// NewMemcache connects to hosts and verifies at least one answers.
func NewMemcache[T any](prefix string, ttl time.Duration, hosts ...string) (*Memcache[T], error) {
	mc := memcache.New(hosts...)
	mc.Timeout = 500 * time.Millisecond
	if err := mc.Ping(); err != nil {
		return nil, err
	}
	return newMemcache[T](mc, prefix, ttl), nil
}

func newMemcache[T any](client *memcache.Client, prefix string, ttl time.Duration) *Memcache[T] {
	return &Memcache[T]{client: client, prefix: strings.TrimSuffix(prefix, ":"), ttl: ttl}
}

func (m *Memcache[T]) key(k string) string {
	return m.prefix + ":" + k
}

func (m *Memcache[T]) Get(key string) (T, bool) {
	var zero T
	item, err := m.client.Get(m.key(key))
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			slog.Warn("Memcache get failed", "key", m.key(key), "error", err)
		}
		return zero, false
	}
	var v T
	if err := json.Unmarshal(item.Value, &v); err != nil {
		slog.Warn("Memcache value undecodable, dropping", "key", m.key(key), "error", err)
		m.Delete(key)
		return zero, false
	}
	return v, true
}

func (m *Memcache[T]) Set(key string, data T) {
	m.SetWithTTL(key, data, m.ttl)
}

func (m *Memcache[T]) SetWithTTL(key string, data T, ttl time.Duration) {
	if ttl > m.ttl {
		ttl = m.ttl
	}
	secs := int32(ttl / time.Second)
	if secs <= 0 {
		return
	}
	body, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Memcache value not encodable", "key", m.key(key), "error", err)
		return
	}
	if err := m.client.Set(&memcache.Item{Key: m.key(key), Value: body, Expiration: secs}); err != nil {
		slog.Warn("Memcache set failed", "key", m.key(key), "error", err)
	}
}

func (m *Memcache[T]) Delete(key string) {
	err := m.client.Delete(m.key(key))
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		slog.Warn("Memcache delete failed", "key", m.key(key), "error", err)
	}
}
