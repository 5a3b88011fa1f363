// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/corkboard-dev/corkboard/kanban/cardcache"
	"github.com/corkboard-dev/corkboard/kanban/schema"
	"github.com/corkboard-dev/corkboard/lib/ref"
	"github.com/corkboard-dev/corkboard/messaging"
)

var (
	listID = ref.MustParseRoomID("!todo:test.local")
	cardA  = ref.MustParseRoomID("!a:test.local")
	cardB  = ref.MustParseRoomID("!b:test.local")
)

func newResolver(t *testing.T, handler http.HandlerFunc) (*Resolver, *cardcache.Cache) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@alice:test.local"), "syt_test")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	cache := cardcache.New(filepath.Join(t.TempDir(), "cache.json"))
	res, err := New(Config{
		Session:    session,
		Cache:      cache,
		ServerName: "test.local",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return res, cache
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}

func writeNotFound(writer http.ResponseWriter) {
	writeJSON(writer, http.StatusNotFound, messaging.MatrixError{
		Code:    messaging.ErrCodeNotFound,
		Message: "Event not found.",
	})
}

func childEvent(stateKey string, via []string) map[string]any {
	content := map[string]any{}
	if via != nil {
		content["via"] = via
	}
	return map[string]any{
		"type":      "m.space.child",
		"state_key": stateKey,
		"content":   content,
	}
}

func TestChildrenPrimary(t *testing.T) {
	res, _ := newResolver(t, func(writer http.ResponseWriter, request *http.Request) {
		switch {
		case strings.HasSuffix(request.URL.Path, "/state"):
			writeJSON(writer, http.StatusOK, []map[string]any{
				childEvent(cardA.String(), []string{"test.local"}),
				{"type": "m.room.name", "state_key": "", "content": map[string]any{"name": "Todo"}},
				childEvent(cardB.String(), []string{"test.local"}),
				childEvent("!released:test.local", nil), // released, no via
			})
		case strings.Contains(request.URL.Path, "/state/m.kanban.cards"):
			t.Error("aggregate consulted although primary tier answered")
			writeNotFound(writer)
		default:
			writeNotFound(writer)
		}
	})

	membership, err := res.Children(context.Background(), listID)
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if membership.Source != SourcePrimary {
		t.Errorf("source = %s, want primary", membership.Source)
	}
	if len(membership.CardIDs) != 2 {
		t.Fatalf("expected 2 cards, got %v", membership.CardIDs)
	}
	if membership.CardIDs[0] != cardA || membership.CardIDs[1] != cardB {
		t.Errorf("unexpected cards: %v", membership.CardIDs)
	}
}

func TestChildrenBackup(t *testing.T) {
	res, _ := newResolver(t, func(writer http.ResponseWriter, request *http.Request) {
		switch {
		case strings.HasSuffix(request.URL.Path, "/state"):
			// The homeserver dropped the child events.
			writeJSON(writer, http.StatusOK, []map[string]any{
				{"type": "m.room.name", "state_key": "", "content": map[string]any{"name": "Todo"}},
			})
		case strings.Contains(request.URL.Path, "/state/m.kanban.cards"):
			writeJSON(writer, http.StatusOK, schema.CardsAggregate{
				Cards: []ref.RoomID{cardA},
			})
		default:
			writeNotFound(writer)
		}
	})

	membership, err := res.Children(context.Background(), listID)
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if membership.Source != SourceBackup {
		t.Errorf("source = %s, want backup", membership.Source)
	}
	if len(membership.CardIDs) != 1 || membership.CardIDs[0] != cardA {
		t.Errorf("unexpected cards: %v", membership.CardIDs)
	}
}

func TestChildrenCache(t *testing.T) {
	res, cache := newResolver(t, func(writer http.ResponseWriter, request *http.Request) {
		switch {
		case strings.HasSuffix(request.URL.Path, "/state"):
			writeJSON(writer, http.StatusOK, []map[string]any{})
		default:
			writeNotFound(writer)
		}
	})
	if err := cache.Add(listID, cardB); err != nil {
		t.Fatalf("cache seed failed: %v", err)
	}

	membership, err := res.Children(context.Background(), listID)
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if membership.Source != SourceCache {
		t.Errorf("source = %s, want cache", membership.Source)
	}
	if len(membership.CardIDs) != 1 || membership.CardIDs[0] != cardB {
		t.Errorf("unexpected cards: %v", membership.CardIDs)
	}
}

func TestChildrenUnknown(t *testing.T) {
	res, _ := newResolver(t, func(writer http.ResponseWriter, request *http.Request) {
		if strings.HasSuffix(request.URL.Path, "/state") {
			writeJSON(writer, http.StatusOK, []map[string]any{})
			return
		}
		writeNotFound(writer)
	})

	membership, err := res.Children(context.Background(), listID)
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if membership.Source != SourceUnknown {
		t.Errorf("source = %s, want unknown", membership.Source)
	}
	if len(membership.CardIDs) != 0 {
		t.Errorf("expected no cards, got %v", membership.CardIDs)
	}
}

// recordedPut is one captured state write.
type recordedPut struct {
	path string
	body map[string]any
}

func capturePuts(puts *[]recordedPut, mu *sync.Mutex, writer http.ResponseWriter, request *http.Request) {
	var body map[string]any
	json.NewDecoder(request.Body).Decode(&body)
	mu.Lock()
	*puts = append(*puts, recordedPut{path: request.URL.Path, body: body})
	mu.Unlock()
	writeJSON(writer, http.StatusOK, map[string]any{"event_id": "$put"})
}

func TestEstablishWritesAllTiers(t *testing.T) {
	var mu sync.Mutex
	var puts []recordedPut
	res, cache := newResolver(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodPut {
			capturePuts(&puts, &mu, writer, request)
			return
		}
		writeNotFound(writer) // no existing aggregate
	})

	if err := res.Establish(context.Background(), listID, cardA); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	if len(puts) != 3 {
		t.Fatalf("expected 3 state writes, got %d: %+v", len(puts), puts)
	}

	child := puts[0]
	if !strings.Contains(child.path, listID.String()+"/state/m.space.child/"+cardA.String()) {
		t.Errorf("unexpected child path: %s", child.path)
	}
	parent := puts[1]
	if !strings.Contains(parent.path, cardA.String()+"/state/m.space.parent/"+listID.String()) {
		t.Errorf("unexpected parent path: %s", parent.path)
	}
	if canonical, _ := parent.body["canonical"].(bool); !canonical {
		t.Errorf("parent record not canonical: %v", parent.body)
	}
	aggregate := puts[2]
	if !strings.Contains(aggregate.path, "/state/m.kanban.cards") {
		t.Errorf("unexpected aggregate path: %s", aggregate.path)
	}
	cards, _ := aggregate.body["cards"].([]any)
	if len(cards) != 1 || cards[0] != cardA.String() {
		t.Errorf("unexpected aggregate body: %v", aggregate.body)
	}

	if cached := cache.All(listID); len(cached) != 1 || cached[0] != cardA {
		t.Errorf("cache not written: %v", cached)
	}
}

func TestEstablishContinuesAfterFailure(t *testing.T) {
	var mu sync.Mutex
	var puts []recordedPut
	res, cache := newResolver(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodPut {
			// The primary tier is down; everything else works.
			if strings.Contains(request.URL.Path, "m.space.child") {
				writeJSON(writer, http.StatusInternalServerError, messaging.MatrixError{
					Code:    "M_UNKNOWN",
					Message: "internal server error",
				})
				return
			}
			capturePuts(&puts, &mu, writer, request)
			return
		}
		writeNotFound(writer)
	})

	err := res.Establish(context.Background(), listID, cardA)
	if err == nil {
		t.Fatal("expected a joined error for the failed tier")
	}

	// Parent and aggregate writes still happened.
	if len(puts) != 2 {
		t.Fatalf("expected 2 surviving writes, got %d: %+v", len(puts), puts)
	}
	if cached := cache.All(listID); len(cached) != 1 {
		t.Errorf("cache should be written despite child failure: %v", cached)
	}
}

func TestEstablishAppendsToExistingAggregate(t *testing.T) {
	var mu sync.Mutex
	var puts []recordedPut
	res, _ := newResolver(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodPut {
			capturePuts(&puts, &mu, writer, request)
			return
		}
		if strings.Contains(request.URL.Path, "/state/m.kanban.cards") {
			writeJSON(writer, http.StatusOK, schema.CardsAggregate{Cards: []ref.RoomID{cardA}})
			return
		}
		writeNotFound(writer)
	})

	if err := res.Establish(context.Background(), listID, cardB); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	var aggregate *recordedPut
	for i := range puts {
		if strings.Contains(puts[i].path, "m.kanban.cards") {
			aggregate = &puts[i]
		}
	}
	if aggregate == nil {
		t.Fatal("aggregate never written")
	}
	cards, _ := aggregate.body["cards"].([]any)
	if len(cards) != 2 || cards[0] != cardA.String() || cards[1] != cardB.String() {
		t.Errorf("unexpected aggregate: %v", aggregate.body)
	}
}

func TestReleaseRemovesCard(t *testing.T) {
	var mu sync.Mutex
	var puts []recordedPut
	res, cache := newResolver(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodPut {
			capturePuts(&puts, &mu, writer, request)
			return
		}
		if strings.Contains(request.URL.Path, "/state/m.kanban.cards") {
			writeJSON(writer, http.StatusOK, schema.CardsAggregate{Cards: []ref.RoomID{cardA, cardB}})
			return
		}
		writeNotFound(writer)
	})
	if err := cache.Add(listID, cardA); err != nil {
		t.Fatalf("cache seed failed: %v", err)
	}

	if err := res.Release(context.Background(), listID, cardA); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if len(puts) != 3 {
		t.Fatalf("expected 3 writes, got %d: %+v", len(puts), puts)
	}
	child := puts[0]
	if !strings.Contains(child.path, "m.space.child") {
		t.Errorf("unexpected first write: %s", child.path)
	}
	if _, hasVia := child.body["via"]; hasVia {
		t.Errorf("release should write empty child content, got %v", child.body)
	}
	parent := puts[1]
	if !strings.Contains(parent.path, "m.space.parent") {
		t.Errorf("unexpected second write: %s", parent.path)
	}
	if _, hasVia := parent.body["via"]; hasVia {
		t.Errorf("release should write empty parent content, got %v", parent.body)
	}
	aggregate := puts[2]
	cards, _ := aggregate.body["cards"].([]any)
	if len(cards) != 1 || cards[0] != cardB.String() {
		t.Errorf("unexpected aggregate after release: %v", aggregate.body)
	}

	if cached := cache.All(listID); len(cached) != 0 {
		t.Errorf("cache entry should be removed: %v", cached)
	}
}

func TestVerifyContainer(t *testing.T) {
	t.Run("space", func(t *testing.T) {
		res, _ := newResolver(t, func(writer http.ResponseWriter, request *http.Request) {
			if strings.Contains(request.URL.Path, "m.room.create") {
				writeJSON(writer, http.StatusOK, map[string]any{"type": "m.space"})
				return
			}
			writeNotFound(writer)
		})
		if !res.VerifyContainer(context.Background(), listID) {
			t.Error("expected space to verify")
		}
	})

	t.Run("plain room", func(t *testing.T) {
		res, _ := newResolver(t, func(writer http.ResponseWriter, request *http.Request) {
			if strings.Contains(request.URL.Path, "m.room.create") {
				writeJSON(writer, http.StatusOK, map[string]any{"creator": "@alice:test.local"})
				return
			}
			writeNotFound(writer)
		})
		if res.VerifyContainer(context.Background(), listID) {
			t.Error("plain room should not verify as container")
		}
	})
}
