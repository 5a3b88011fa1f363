// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package kanban

import (
	"time"

	"github.com/corkboard-dev/corkboard/lib/ref"
)

// Intent is a user-initiated board mutation. The set of intents is
// closed: every variant lives in this file and carries the unexported
// marker method, so the dispatcher's switch is exhaustive by
// construction.
type Intent interface {
	isIntent()
}

// LoadBoards requests a full reload of every board the session has
// joined.
type LoadBoards struct{}

// CreateList creates a new column backed by a fresh Matrix space.
type CreateList struct {
	Name string
}

// RenameList renames an existing column.
type RenameList struct {
	ListID ref.RoomID
	Name   string
}

// CreateCard creates a new card at the end of a list.
type CreateCard struct {
	ListID ref.RoomID
	Title  string
}

// OpenCard selects a card and reloads its metadata and timeline.
type OpenCard struct {
	CardID ref.RoomID
}

// MoveCard places a card at Index within the target list. Index is the
// insertion position among the target's cards in display order;
// anything at or past the end appends.
type MoveCard struct {
	CardID   ref.RoomID
	ToListID ref.RoomID
	Index    int
}

// UpdateCardTitle replaces a card's title.
type UpdateCardTitle struct {
	CardID ref.RoomID
	Title  string
}

// UpdateCardDescription replaces a card's description.
type UpdateCardDescription struct {
	CardID      ref.RoomID
	Description string
}

// DeleteCard removes a card from the board. The backing room is
// archived, never destroyed, so history stays recoverable.
type DeleteCard struct {
	CardID ref.RoomID
}

// AddTodo appends an unchecked todo to a card.
type AddTodo struct {
	CardID ref.RoomID
	Text   string
}

// ToggleTodo flips one todo's completion state.
type ToggleTodo struct {
	CardID ref.RoomID
	TodoID string
}

// UpdateTodoText edits one todo's text.
type UpdateTodoText struct {
	CardID ref.RoomID
	TodoID string
	Text   string
}

// DeleteTodo removes one todo from a card.
type DeleteTodo struct {
	CardID ref.RoomID
	TodoID string
}

// AddTag adds a tag to a card. Adding an existing tag is a no-op.
type AddTag struct {
	CardID ref.RoomID
	Tag    string
}

// RemoveTag removes a tag from a card.
type RemoveTag struct {
	CardID ref.RoomID
	Tag    string
}

// SetEndTime sets a card's due time.
type SetEndTime struct {
	CardID  ref.RoomID
	EndTime time.Time
}

// ClearEndTime removes a card's due time.
type ClearEndTime struct {
	CardID ref.RoomID
}

// AddComment appends a comment to a card's timeline.
type AddComment struct {
	CardID ref.RoomID
	Text   string
}

func (LoadBoards) isIntent()            {}
func (CreateList) isIntent()            {}
func (RenameList) isIntent()            {}
func (CreateCard) isIntent()            {}
func (OpenCard) isIntent()              {}
func (MoveCard) isIntent()              {}
func (UpdateCardTitle) isIntent()       {}
func (UpdateCardDescription) isIntent() {}
func (DeleteCard) isIntent()            {}
func (AddTodo) isIntent()               {}
func (ToggleTodo) isIntent()            {}
func (UpdateTodoText) isIntent()        {}
func (DeleteTodo) isIntent()            {}
func (AddTag) isIntent()                {}
func (RemoveTag) isIntent()             {}
func (SetEndTime) isIntent()            {}
func (ClearEndTime) isIntent()          {}
func (AddComment) isIntent()            {}
