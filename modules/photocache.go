package modules

import (
	"sync"
	"time"
)

const photoCacheTTL = 1 * time.Hour

// ProfilePicture is what GetProfilePicture hands back to callers.
type ProfilePicture struct {
	URL  string `json:"url"`
	ID   string `json:"id"`
	Type string `json:"type"`
}

// photoCache keeps profile-picture lookups warm for an hour. Entries evict
// themselves with AfterFunc so the map never needs a sweeper.
type photoCache struct {
	entries sync.Map
}

func (c *photoCache) get(chatID string) (*ProfilePicture, bool) {
	if cached, ok := c.entries.Load(chatID); ok {
		return cached.(*ProfilePicture), true
	}
	return nil, false
}

func (c *photoCache) put(chatID string, pic *ProfilePicture) {
	c.entries.Store(chatID, pic)
	time.AfterFunc(photoCacheTTL, func() {
		c.entries.Delete(chatID)
	})
}

func (c *photoCache) clear() {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
}
