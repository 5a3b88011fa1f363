// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package kanban

import (
	"testing"

	"github.com/corkboard-dev/corkboard/lib/ref"
)

func TestUpsertListPreservesMembership(t *testing.T) {
	state := NewBoardState()
	listID := ref.MustParseRoomID("!todo:test.local")
	cardID := ref.MustParseRoomID("!card:test.local")

	state.UpsertList(List{ID: listID, Name: "Todo", Position: 1000.0})
	state.UpsertCard(Card{ID: cardID, ListID: listID, Position: 1000.0})

	// A rename event carries no membership; the column must survive.
	state.UpsertList(List{ID: listID, Name: "Backlog", Position: 1000.0})

	list := state.List(listID)
	if list.Name != "Backlog" {
		t.Errorf("name = %q", list.Name)
	}
	if len(list.CardIDs) != 1 || list.CardIDs[0] != cardID {
		t.Errorf("membership lost on rename: %v", list.CardIDs)
	}
}

func TestUpsertCardIdempotent(t *testing.T) {
	state := NewBoardState()
	listID := ref.MustParseRoomID("!todo:test.local")
	cardID := ref.MustParseRoomID("!card:test.local")
	state.UpsertList(List{ID: listID, Position: 1000.0})

	card := Card{ID: cardID, Title: "Once", ListID: listID, Position: 1000.0}
	state.UpsertCard(card)
	state.UpsertCard(card)

	list := state.List(listID)
	if len(list.CardIDs) != 1 {
		t.Errorf("duplicate membership after repeated upsert: %v", list.CardIDs)
	}
}

func TestUpsertCardMovesMembership(t *testing.T) {
	state := NewBoardState()
	todoID := ref.MustParseRoomID("!todo:test.local")
	doingID := ref.MustParseRoomID("!doing:test.local")
	cardID := ref.MustParseRoomID("!card:test.local")
	state.UpsertList(List{ID: todoID, Position: 1000.0})
	state.UpsertList(List{ID: doingID, Position: 2000.0})

	state.UpsertCard(Card{ID: cardID, ListID: todoID, Position: 1000.0})
	state.UpsertCard(Card{ID: cardID, ListID: doingID, Position: 1000.0})

	if got := len(state.List(todoID).CardIDs); got != 0 {
		t.Errorf("old list still holds %d cards", got)
	}
	if got := len(state.List(doingID).CardIDs); got != 1 {
		t.Errorf("new list holds %d cards, want 1", got)
	}
}

func TestUpsertCardKeepsListWhenUnresolved(t *testing.T) {
	state := NewBoardState()
	listID := ref.MustParseRoomID("!todo:test.local")
	cardID := ref.MustParseRoomID("!card:test.local")
	state.UpsertList(List{ID: listID, Position: 1000.0})
	state.UpsertCard(Card{ID: cardID, ListID: listID, Position: 1500.0})

	// A reload that could not resolve the list leaves placement alone.
	state.UpsertCard(Card{ID: cardID, Title: "Reloaded"})

	card := state.Card(cardID)
	if card.ListID != listID {
		t.Errorf("list = %s, want %s", card.ListID, listID)
	}
	if card.Position != 1500.0 {
		t.Errorf("position = %v, want 1500", card.Position)
	}
	if card.Title != "Reloaded" {
		t.Errorf("title = %q", card.Title)
	}
}

func TestAllListsSorted(t *testing.T) {
	state := NewBoardState()
	state.UpsertList(List{ID: ref.MustParseRoomID("!c:test.local"), Name: "C", Position: 3000.0})
	state.UpsertList(List{ID: ref.MustParseRoomID("!a:test.local"), Name: "A", Position: 1000.0})
	state.UpsertList(List{ID: ref.MustParseRoomID("!b:test.local"), Name: "B", Position: 2000.0})

	lists := state.AllLists()
	if len(lists) != 3 {
		t.Fatalf("expected 3 lists, got %d", len(lists))
	}
	for i, want := range []string{"A", "B", "C"} {
		if lists[i].Name != want {
			t.Errorf("lists[%d] = %q, want %q", i, lists[i].Name, want)
		}
	}
}

func TestListCardsSortedAndFiltered(t *testing.T) {
	state := NewBoardState()
	listID := ref.MustParseRoomID("!todo:test.local")
	list := List{ID: listID, Position: 1000.0, CardIDs: []ref.RoomID{
		ref.MustParseRoomID("!late:test.local"),
		ref.MustParseRoomID("!early:test.local"),
		ref.MustParseRoomID("!unloaded:test.local"), // never loaded
	}}
	state.UpsertList(list)
	state.UpsertCard(Card{ID: ref.MustParseRoomID("!late:test.local"), Title: "Late", ListID: listID, Position: 2000.0})
	state.UpsertCard(Card{ID: ref.MustParseRoomID("!early:test.local"), Title: "Early", ListID: listID, Position: 1000.0})

	cards := state.ListCards(listID)
	if len(cards) != 2 {
		t.Fatalf("expected 2 loaded cards, got %d", len(cards))
	}
	if cards[0].Title != "Early" || cards[1].Title != "Late" {
		t.Errorf("cards not position sorted: %q, %q", cards[0].Title, cards[1].Title)
	}
}

func TestRemoveCardClearsSelection(t *testing.T) {
	state := NewBoardState()
	listID := ref.MustParseRoomID("!todo:test.local")
	cardID := ref.MustParseRoomID("!card:test.local")
	state.UpsertList(List{ID: listID, Position: 1000.0})
	state.UpsertCard(Card{ID: cardID, ListID: listID, Position: 1000.0})
	state.SetActivities(cardID, []Activity{{ID: "a1", Kind: ActivityComment}})
	state.SelectedCardID = cardID

	state.RemoveCard(cardID)

	if state.Card(cardID) != nil {
		t.Error("card still present")
	}
	if !state.SelectedCardID.IsZero() {
		t.Error("selection not cleared")
	}
	if state.Activities(cardID) != nil {
		t.Error("timeline not cleared")
	}
}

func TestTodoProgress(t *testing.T) {
	card := &Card{Todos: []TodoItem{
		{ID: "1", Completed: true},
		{ID: "2"},
		{ID: "3", Completed: true},
	}}
	done, total := TodoProgress(card)
	if done != 2 || total != 3 {
		t.Errorf("progress = (%d, %d), want (2, 3)", done, total)
	}
}
