package token

import (
	"sync"

	"wagateway/internal/models"
)

// Cache stores credentials by key. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (models.Credential, bool)
	Set(key string, cred models.Credential)
	Delete(key string)
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]models.Credential
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]models.Credential)}
}

func (c *MemoryCache) Get(key string) (models.Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cred, ok := c.items[key]
	return cred, ok
}

func (c *MemoryCache) Set(key string, cred models.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cred
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}
