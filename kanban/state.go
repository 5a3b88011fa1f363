// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package kanban

import (
	"sort"

	"github.com/corkboard-dev/corkboard/lib/ref"
)

// BoardState is the single canonical in-memory view of all boards. It
// is owned by one goroutine (the dispatcher's caller) and must not be
// shared; remote workers never touch it directly, they report through
// the dispatcher's event channel instead.
type BoardState struct {
	lists      map[ref.RoomID]*List
	cards      map[ref.RoomID]*Card
	activities map[ref.RoomID][]Activity

	SelectedCardID ref.RoomID
	Loading        bool
	Error          string
}

// NewBoardState returns an empty board state.
func NewBoardState() *BoardState {
	return &BoardState{
		lists:      make(map[ref.RoomID]*List),
		cards:      make(map[ref.RoomID]*Card),
		activities: make(map[ref.RoomID][]Activity),
	}
}

// List returns the list with the given ID, or nil.
func (s *BoardState) List(listID ref.RoomID) *List {
	return s.lists[listID]
}

// Card returns the card with the given ID, or nil.
func (s *BoardState) Card(cardID ref.RoomID) *Card {
	return s.cards[cardID]
}

// Activities returns the loaded activity timeline for a card, oldest
// first. Nil when no timeline has been loaded yet.
func (s *BoardState) Activities(cardID ref.RoomID) []Activity {
	return s.activities[cardID]
}

// UpsertList replaces the stored list wholesale. An existing list's
// membership cache survives when the incoming list carries none, so a
// rename does not wipe the column.
func (s *BoardState) UpsertList(list List) {
	if existing, ok := s.lists[list.ID]; ok && list.CardIDs == nil {
		list.CardIDs = existing.CardIDs
	}
	stored := list
	s.lists[list.ID] = &stored
}

// UpsertCard replaces the stored card wholesale and keeps list
// membership caches consistent: the card is appended to its list's
// CardIDs if absent and removed from any other list that still holds
// it. Idempotent.
func (s *BoardState) UpsertCard(card Card) {
	// A reload without a resolvable list keeps the card where it was.
	if existing, ok := s.cards[card.ID]; ok && card.ListID.IsZero() {
		card.ListID = existing.ListID
		card.Position = existing.Position
	}
	stored := card
	s.cards[card.ID] = &stored

	for listID, list := range s.lists {
		if listID == card.ListID {
			continue
		}
		list.CardIDs = removeRoomID(list.CardIDs, card.ID)
	}
	if list, ok := s.lists[card.ListID]; ok {
		if !containsRoomID(list.CardIDs, card.ID) {
			list.CardIDs = append(list.CardIDs, card.ID)
		}
	}
}

// RemoveCard drops the card and its list membership and timeline.
func (s *BoardState) RemoveCard(cardID ref.RoomID) {
	card, ok := s.cards[cardID]
	if !ok {
		return
	}
	if list, ok := s.lists[card.ListID]; ok {
		list.CardIDs = removeRoomID(list.CardIDs, cardID)
	}
	delete(s.cards, cardID)
	delete(s.activities, cardID)
	if s.SelectedCardID == cardID {
		s.SelectedCardID = ref.RoomID{}
	}
}

// SetActivities replaces a card's loaded timeline.
func (s *BoardState) SetActivities(cardID ref.RoomID, activities []Activity) {
	s.activities[cardID] = activities
}

// AppendActivity adds one entry to a card's loaded timeline.
func (s *BoardState) AppendActivity(cardID ref.RoomID, activity Activity) {
	s.activities[cardID] = append(s.activities[cardID], activity)
}

// AllLists returns every list sorted by position.
func (s *BoardState) AllLists() []*List {
	lists := make([]*List, 0, len(s.lists))
	for _, list := range s.lists {
		lists = append(lists, list)
	}
	sort.SliceStable(lists, func(i, j int) bool {
		return lists[i].Position < lists[j].Position
	})
	return lists
}

// ListCards returns the cards of one list sorted by position. Cards
// referenced by the membership cache but not yet loaded are skipped.
func (s *BoardState) ListCards(listID ref.RoomID) []*Card {
	list, ok := s.lists[listID]
	if !ok {
		return nil
	}
	cards := make([]*Card, 0, len(list.CardIDs))
	for _, cardID := range list.CardIDs {
		if card, ok := s.cards[cardID]; ok {
			cards = append(cards, card)
		}
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Position < cards[j].Position
	})
	return cards
}

// SetLoading toggles the global loading flag.
func (s *BoardState) SetLoading(loading bool) {
	s.Loading = loading
}

// SetError records a user-visible error message. Empty clears it.
func (s *BoardState) SetError(message string) {
	s.Error = message
}

func containsRoomID(ids []ref.RoomID, id ref.RoomID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func removeRoomID(ids []ref.RoomID, id ref.RoomID) []ref.RoomID {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
