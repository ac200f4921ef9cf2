package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// Exhausted remembers (user, day) pairs whose counter has reached the daily
// limit. A day's counter never decreases, so a marker stays true until the
// day rolls over and can be trusted across instances.
type Exhausted struct {
	cache *bigcache.BigCache
}

// NewExhausted creates the cache; entries are evicted after lifeWindow.
func NewExhausted(ctx context.Context, lifeWindow time.Duration) (*Exhausted, error) {
	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.CleanWindow = time.Hour
	cfg.Verbose = false
	c, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init exhausted cache: %w", err)
	}
	return &Exhausted{cache: c}, nil
}

func exhaustedKey(userID, date string) string {
	return date + "|" + userID
}

// Mark records that userID has no budget left on date.
func (e *Exhausted) Mark(userID, date string) {
	if e == nil {
		return
	}
	_ = e.cache.Set(exhaustedKey(userID, date), []byte{1})
}

// Has reports whether userID is known to be exhausted on date.
func (e *Exhausted) Has(userID, date string) bool {
	if e == nil {
		return false
	}
	_, err := e.cache.Get(exhaustedKey(userID, date))
	return err == nil
}

// Len returns the number of marked pairs.
func (e *Exhausted) Len() int {
	if e == nil {
		return 0
	}
	return e.cache.Len()
}

// Reset drops every marker.
func (e *Exhausted) Reset() error {
	if e == nil {
		return nil
	}
	return e.cache.Reset()
}

// Close stops the cleanup goroutine.
func (e *Exhausted) Close() error {
	if e == nil {
		return nil
	}
	return e.cache.Close()
}
