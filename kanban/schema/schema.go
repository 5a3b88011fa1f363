// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire format of board data on the
// homeserver: custom state event types, their content structs, and the
// codec between those structs and the domain model.
//
// Timestamps travel as RFC 3339 strings. Decoding tolerates malformed
// timestamps (zero time) so one bad record cannot take a card down.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/corkboard-dev/corkboard/kanban"
	"github.com/corkboard-dev/corkboard/lib/ref"
)

// Custom event types carrying board data.
const (
	// EventTypeCard holds a card's scalar metadata, state key "".
	EventTypeCard ref.EventType = "m.kanban.card"

	// EventTypeTodos holds a card's whole todo array, state key "".
	// Todos are always written as one array; there are no partial
	// updates on the wire.
	EventTypeTodos ref.EventType = "m.kanban.todos"

	// EventTypeCards is the aggregate child list kept on a list space
	// as a backup for dropped m.space.child events, state key "".
	EventTypeCards ref.EventType = "m.kanban.cards"

	// EventTypeList holds a list's own metadata on its space, state
	// key "".
	EventTypeList ref.EventType = "m.kanban.list"

	// EventTypeActivity is the timeline event type of card history
	// entries.
	EventTypeActivity ref.EventType = "m.kanban.activity"
)

// Standard Matrix event types the engine reads and writes.
const (
	EventTypeSpaceChild  ref.EventType = "m.space.child"
	EventTypeSpaceParent ref.EventType = "m.space.parent"
	EventTypeRoomCreate  ref.EventType = "m.room.create"
	EventTypeRoomName    ref.EventType = "m.room.name"
	EventTypeRoomTopic   ref.EventType = "m.room.topic"
)

// BoardTopicMarker is embedded in a list space's topic so board
// discovery can tell board containers apart from arbitrary spaces the
// user participates in.
const BoardTopicMarker = "[corkboard:board]"

// IsBoardTopic reports whether a room topic carries the marker.
func IsBoardTopic(topic string) bool {
	return strings.Contains(topic, BoardTopicMarker)
}

// CardMetadata is the content of an m.kanban.card state event.
type CardMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ListID      string   `json:"list_id"`
	Position    float64  `json:"position"`
	Tags        []string `json:"tags,omitempty"`
	EndTime     string   `json:"end_time,omitempty"`
	IsArchived  bool     `json:"is_archived,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// ListMetadata is the content of an m.kanban.list state event.
type ListMetadata struct {
	Name      string  `json:"name"`
	Position  float64 `json:"position"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// TodoRecord is one entry of an m.kanban.todos state event.
type TodoRecord struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// TodosContent is the content of an m.kanban.todos state event.
type TodosContent struct {
	Todos []TodoRecord `json:"todos"`
}

// CardsAggregate is the content of an m.kanban.cards state event.
type CardsAggregate struct {
	Cards []ref.RoomID `json:"cards"`
}

// ActivityContent is the content of an m.kanban.activity timeline
// event. Sender and server timestamp come from the event envelope.
type ActivityContent struct {
	Kind     string         `json:"kind"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SpaceChildContent is the content of an m.space.child state event.
// An empty Via releases the relationship.
type SpaceChildContent struct {
	Via []string `json:"via,omitempty"`
}

// SpaceParentContent is the content of an m.space.parent state event.
type SpaceParentContent struct {
	Via       []string `json:"via,omitempty"`
	Canonical bool     `json:"canonical,omitempty"`
}

// EncodeCard converts a domain card to its wire metadata.
func EncodeCard(card kanban.Card) CardMetadata {
	meta := CardMetadata{
		Title:       card.Title,
		Description: card.Description,
		ListID:      card.ListID.String(),
		Position:    card.Position,
		Tags:        card.Tags,
		IsArchived:  card.Archived,
		CreatedAt:   card.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   card.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if card.EndTime != nil {
		meta.EndTime = card.EndTime.UTC().Format(time.RFC3339)
	}
	return meta
}

// DecodeCard parses raw m.kanban.card content.
func DecodeCard(raw json.RawMessage) (CardMetadata, error) {
	var meta CardMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return CardMetadata{}, fmt.Errorf("schema: decode card metadata: %w", err)
	}
	return meta, nil
}

// CardFromMetadata builds a domain card from wire metadata. The
// fallback list ID is used when the record carries none or an invalid
// one, so a half-written record still lands in a real column.
func CardFromMetadata(cardID ref.RoomID, fallbackListID ref.RoomID, meta CardMetadata) kanban.Card {
	listID := fallbackListID
	if parsed, err := ref.ParseRoomID(meta.ListID); err == nil {
		listID = parsed
	}
	card := kanban.Card{
		ID:          cardID,
		Title:       meta.Title,
		Description: meta.Description,
		ListID:      listID,
		Position:    meta.Position,
		Tags:        meta.Tags,
		Archived:    meta.IsArchived,
		CreatedAt:   parseTime(meta.CreatedAt),
		UpdatedAt:   parseTime(meta.UpdatedAt),
	}
	if meta.EndTime != "" {
		if endTime := parseTime(meta.EndTime); !endTime.IsZero() {
			card.EndTime = &endTime
		}
	}
	return card
}

// EncodeTodos converts a card's todos to wire form.
func EncodeTodos(todos []kanban.TodoItem) TodosContent {
	records := make([]TodoRecord, 0, len(todos))
	for _, todo := range todos {
		record := TodoRecord{
			ID:        todo.ID,
			Text:      todo.Text,
			Completed: todo.Completed,
			CreatedAt: todo.CreatedAt.UTC().Format(time.RFC3339),
		}
		if todo.CompletedAt != nil {
			record.CompletedAt = todo.CompletedAt.UTC().Format(time.RFC3339)
		}
		records = append(records, record)
	}
	return TodosContent{Todos: records}
}

// DecodeTodos converts wire todos back to domain form.
func DecodeTodos(content TodosContent) []kanban.TodoItem {
	todos := make([]kanban.TodoItem, 0, len(content.Todos))
	for _, record := range content.Todos {
		todo := kanban.TodoItem{
			ID:        record.ID,
			Text:      record.Text,
			Completed: record.Completed,
			CreatedAt: parseTime(record.CreatedAt),
		}
		if record.CompletedAt != "" {
			if completedAt := parseTime(record.CompletedAt); !completedAt.IsZero() {
				todo.CompletedAt = &completedAt
			}
		}
		todos = append(todos, todo)
	}
	return todos
}

// EncodeActivity converts a domain activity to wire content.
func EncodeActivity(activity kanban.Activity) ActivityContent {
	return ActivityContent{
		Kind:     string(activity.Kind),
		Text:     activity.Text,
		Metadata: activity.Metadata,
	}
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
