// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package cardcache persists a list-to-cards membership map to a local
// JSON file. It is the last resort of the relationship resolver: when
// the homeserver has dropped both the space-child state events and the
// aggregate record, this file still knows which cards a list held.
//
// Every mutation rewrites the whole file synchronously, so the cache
// is durable the moment a mutation returns. The file is small (room
// IDs only) and hand-editable; loading tolerates comments and trailing
// commas, and a corrupt file is treated as empty rather than blocking
// startup.
package cardcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"

	"github.com/corkboard-dev/corkboard/lib/ref"
)

// document is the on-disk shape.
type document struct {
	SpaceCards map[ref.RoomID][]ref.RoomID `json:"space_cards"`
}

// Cache is a mutex-guarded write-through membership cache.
type Cache struct {
	path string

	mu     sync.Mutex
	loaded bool
	cards  map[ref.RoomID][]ref.RoomID
}

// New creates a cache backed by the file at path. The file is loaded
// lazily on first access and created on first write.
func New(path string) *Cache {
	return &Cache{path: path}
}

// Add records cardID under listID and persists. Idempotent.
func (c *Cache) Add(listID, cardID ref.RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	for _, existing := range c.cards[listID] {
		if existing == cardID {
			return nil
		}
	}
	c.cards[listID] = append(c.cards[listID], cardID)
	return c.persist()
}

// All returns the cached card IDs for listID, in insertion order.
func (c *Cache) All(listID ref.RoomID) []ref.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	return append([]ref.RoomID(nil), c.cards[listID]...)
}

// Remove drops cardID from listID and persists. Removing an absent
// entry is a no-op and does not touch the file.
func (c *Cache) Remove(listID, cardID ref.RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	entries := c.cards[listID]
	for i, existing := range entries {
		if existing == cardID {
			c.cards[listID] = append(entries[:i], entries[i+1:]...)
			if len(c.cards[listID]) == 0 {
				delete(c.cards, listID)
			}
			return c.persist()
		}
	}
	return nil
}

// Clear drops every entry for listID and persists.
func (c *Cache) Clear(listID ref.RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	if _, ok := c.cards[listID]; !ok {
		return nil
	}
	delete(c.cards, listID)
	return c.persist()
}

// load reads the file once. Backstop data must never block startup, so
// a missing or corrupt file just means an empty cache. Callers hold mu.
func (c *Cache) load() {
	if c.loaded {
		return
	}
	c.loaded = true
	c.cards = make(map[ref.RoomID][]ref.RoomID)

	raw, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var doc document
	if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil {
		return
	}
	if doc.SpaceCards != nil {
		c.cards = doc.SpaceCards
	}
}

// persist rewrites the whole file. Callers hold mu.
func (c *Cache) persist() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("cardcache: create directory: %w", err)
	}
	raw, err := json.MarshalIndent(document{SpaceCards: c.cards}, "", "  ")
	if err != nil {
		return fmt.Errorf("cardcache: encode: %w", err)
	}
	if err := os.WriteFile(c.path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("cardcache: write %s: %w", c.path, err)
	}
	return nil
}
