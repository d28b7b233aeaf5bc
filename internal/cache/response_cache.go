package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type Entry struct {
	Value         json.RawMessage
	ModelID       string
	PromptVersion string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
	Now        func() time.Time
}

// ResponseCache memoizes stage outputs by prompt signature. Entries expire
// after TTL; the least recently used entry is evicted when full.
type ResponseCache struct {
	entries *lru.Cache
	ttl     time.Duration
	now     func() time.Time
}

func NewResponseCache(config Config) (*ResponseCache, error) {
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 256
	}
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}
	entries, err := lru.New(config.MaxEntries)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{
		entries: entries,
		ttl:     config.TTL,
		now:     config.Now,
	}, nil
}

func (c *ResponseCache) Get(signature string) (Entry, bool) {
	value, ok := c.entries.Get(signature)
	if !ok {
		return Entry{}, false
	}
	entry := value.(Entry)
	if c.now().After(entry.ExpiresAt) {
		c.entries.Remove(signature)
		return Entry{}, false
	}
	return cloneEntry(entry), true
}

func (c *ResponseCache) Set(signature string, entry Entry) {
	now := c.now()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(c.ttl)
	c.entries.Add(signature, cloneEntry(entry))
}

func (c *ResponseCache) Len() int {
	return c.entries.Len()
}

// BuildSignature hashes the normalized parts into a stable cache key.
func BuildSignature(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized = append(normalized, strings.TrimSpace(part))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "||")))
	return hex.EncodeToString(sum[:])
}

func cloneEntry(entry Entry) Entry {
	clone := entry
	clone.Value = append([]byte(nil), entry.Value...)
	return clone
}
