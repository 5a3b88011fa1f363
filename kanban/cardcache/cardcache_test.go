// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package cardcache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/corkboard-dev/corkboard/lib/ref"
)

func testPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "kanban_cache.json")
}

func TestAddPersistsAcrossReopen(t *testing.T) {
	path := testPath(t)
	listID := ref.MustParseRoomID("!todo:test.local")
	cardA := ref.MustParseRoomID("!a:test.local")
	cardB := ref.MustParseRoomID("!b:test.local")

	cache := New(path)
	if err := cache.Add(listID, cardA); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := cache.Add(listID, cardB); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := cache.Add(listID, cardA); err != nil {
		t.Fatalf("duplicate Add failed: %v", err)
	}

	// A fresh cache over the same file sees the same entries.
	reopened := New(path)
	cards := reopened.All(listID)
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards after reopen, got %d", len(cards))
	}
	if cards[0] != cardA || cards[1] != cardB {
		t.Errorf("unexpected order: %v", cards)
	}
}

func TestOnDiskShape(t *testing.T) {
	path := testPath(t)
	cache := New(path)
	if err := cache.Add(ref.MustParseRoomID("!todo:test.local"), ref.MustParseRoomID("!a:test.local")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cache file: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, `"space_cards"`) {
		t.Errorf("missing space_cards key: %s", content)
	}
	if !strings.Contains(content, `"!todo:test.local"`) {
		t.Errorf("missing list key: %s", content)
	}
}

func TestRemove(t *testing.T) {
	path := testPath(t)
	listID := ref.MustParseRoomID("!todo:test.local")
	cardA := ref.MustParseRoomID("!a:test.local")
	cardB := ref.MustParseRoomID("!b:test.local")

	cache := New(path)
	if err := cache.Add(listID, cardA); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := cache.Add(listID, cardB); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := cache.Remove(listID, cardA); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := cache.Remove(listID, cardA); err != nil {
		t.Fatalf("Remove of absent entry failed: %v", err)
	}

	cards := New(path).All(listID)
	if len(cards) != 1 || cards[0] != cardB {
		t.Errorf("unexpected cards after remove: %v", cards)
	}
}

func TestClear(t *testing.T) {
	path := testPath(t)
	listID := ref.MustParseRoomID("!todo:test.local")

	cache := New(path)
	if err := cache.Add(listID, ref.MustParseRoomID("!a:test.local")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := cache.Clear(listID); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if cards := New(path).All(listID); len(cards) != 0 {
		t.Errorf("expected empty list after clear, got %v", cards)
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	cache := New(testPath(t))
	if cards := cache.All(ref.MustParseRoomID("!todo:test.local")); len(cards) != 0 {
		t.Errorf("expected empty cache, got %v", cards)
	}
}

func TestCorruptFileIsEmpty(t *testing.T) {
	path := testPath(t)
	if err := os.WriteFile(path, []byte("not json at all{{{"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	cache := New(path)
	listID := ref.MustParseRoomID("!todo:test.local")
	if cards := cache.All(listID); len(cards) != 0 {
		t.Errorf("expected empty cache for corrupt file, got %v", cards)
	}

	// Writes recover the file.
	cardID := ref.MustParseRoomID("!a:test.local")
	if err := cache.Add(listID, cardID); err != nil {
		t.Fatalf("Add after corrupt load failed: %v", err)
	}
	if cards := New(path).All(listID); len(cards) != 1 {
		t.Errorf("expected recovered cache, got %v", cards)
	}
}

func TestHandEditedFileWithComments(t *testing.T) {
	path := testPath(t)
	edited := `{
  // restored by hand after a resync
  "space_cards": {
    "!todo:test.local": ["!a:test.local",],
  },
}`
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("write edited file: %v", err)
	}

	cards := New(path).All(ref.MustParseRoomID("!todo:test.local"))
	if len(cards) != 1 || cards[0].String() != "!a:test.local" {
		t.Errorf("unexpected cards from hand-edited file: %v", cards)
	}
}
