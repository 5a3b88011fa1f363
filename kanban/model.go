// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package kanban holds the board domain model, the canonical in-memory
// board state, and the intent dispatcher that bridges local mutations
// to remote synchronization.
//
// A List is backed by a Matrix space, a Card by an ordinary room inside
// that space. The dispatcher applies every user intent to BoardState
// immediately and reconciles with the homeserver asynchronously; remote
// results come back only as events on the dispatcher's event channel.
package kanban

import (
	"time"

	"github.com/google/uuid"

	"github.com/corkboard-dev/corkboard/lib/ref"
)

// List is a board column, backed by a Matrix space.
type List struct {
	ID   ref.RoomID
	Name string

	// CardIDs is a derived membership cache. It is rebuilt from the
	// relationship resolver during board loading and maintained
	// incrementally by BoardState afterwards.
	CardIDs []ref.RoomID

	Position float64
}

func (l *List) GetPosition() float64  { return l.Position }
func (l *List) SetPosition(p float64) { l.Position = p }

// Card is a single board card, backed by a Matrix room.
type Card struct {
	ID          ref.RoomID
	Title       string
	Description string
	ListID      ref.RoomID
	Position    float64
	Tags        []string
	EndTime     *time.Time
	Todos       []TodoItem
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c *Card) GetPosition() float64  { return c.Position }
func (c *Card) SetPosition(p float64) { c.Position = p }

// Touch marks the card as modified at now.
func (c *Card) Touch(now time.Time) {
	c.UpdatedAt = now
}

// Todo returns the todo item with the given ID, or nil.
func (c *Card) Todo(todoID string) *TodoItem {
	for i := range c.Todos {
		if c.Todos[i].ID == todoID {
			return &c.Todos[i]
		}
	}
	return nil
}

// Clone returns a copy whose slice and pointer fields are detached
// from the receiver. Worker goroutines must only ever see clones; the
// owner keeps mutating the original while a persist is in flight.
func (c *Card) Clone() Card {
	clone := *c
	if c.Tags != nil {
		clone.Tags = append([]string(nil), c.Tags...)
	}
	if c.Todos != nil {
		clone.Todos = append([]TodoItem(nil), c.Todos...)
		for i := range clone.Todos {
			if at := clone.Todos[i].CompletedAt; at != nil {
				completed := *at
				clone.Todos[i].CompletedAt = &completed
			}
		}
	}
	if c.EndTime != nil {
		endTime := *c.EndTime
		clone.EndTime = &endTime
	}
	return clone
}

// TodoItem is one checklist entry on a card.
type TodoItem struct {
	ID          string
	Text        string
	Completed   bool
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// NewTodoItem creates an unchecked todo with a fresh identifier.
func NewTodoItem(text string, now time.Time) TodoItem {
	return TodoItem{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: now,
	}
}

// TodoProgress reports how many of the card's todos are completed.
func TodoProgress(card *Card) (done, total int) {
	for _, todo := range card.Todos {
		if todo.Completed {
			done++
		}
	}
	return done, len(card.Todos)
}

// ActivityKind classifies a card activity entry.
type ActivityKind string

const (
	ActivityComment            ActivityKind = "comment"
	ActivityStatusChange       ActivityKind = "status_change"
	ActivityTagAdded           ActivityKind = "tag_added"
	ActivityTagRemoved         ActivityKind = "tag_removed"
	ActivityTodoAdded          ActivityKind = "todo_added"
	ActivityTodoCompleted      ActivityKind = "todo_completed"
	ActivityTodoUncompleted    ActivityKind = "todo_uncompleted"
	ActivityEndTimeSet         ActivityKind = "end_time_set"
	ActivityEndTimeRemoved     ActivityKind = "end_time_removed"
	ActivityDescriptionChanged ActivityKind = "description_changed"
	ActivityTitleChanged       ActivityKind = "title_changed"
)

// Activity is one entry in a card's history timeline.
type Activity struct {
	ID        string
	Kind      ActivityKind
	Text      string
	Metadata  map[string]any
	CreatedAt time.Time
	UserID    ref.UserID
}

// NewActivity creates an activity entry with a fresh identifier. The
// authoritative ID is the Matrix event ID once the entry round-trips
// through the homeserver; this one only has to be unique locally.
func NewActivity(kind ActivityKind, text string, userID ref.UserID, now time.Time) Activity {
	return Activity{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		CreatedAt: now,
		UserID:    userID,
	}
}
