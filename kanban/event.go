// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package kanban

import (
	"github.com/corkboard-dev/corkboard/lib/ref"
)

// Event is a reconciliation message from a remote worker back to the
// board state owner. Like Intent, the set is closed.
type Event interface {
	isEvent()
}

// ListLoaded carries an authoritative list snapshot to upsert.
type ListLoaded struct {
	List List
}

// CardLoaded carries an authoritative card snapshot to upsert.
type CardLoaded struct {
	Card Card
}

// CardGone reports that a card's backing room no longer exists or is
// inaccessible; the card is dropped from the board.
type CardGone struct {
	CardID ref.RoomID
}

// ActivitiesLoaded carries a card's reloaded timeline, oldest first.
type ActivitiesLoaded struct {
	CardID     ref.RoomID
	Activities []Activity
}

// LoadingChanged toggles the global loading flag.
type LoadingChanged struct {
	Loading bool
}

// SyncFailed reports a remote operation failure. The optimistic local
// mutation stays in place; the user retries manually.
type SyncFailed struct {
	Op  string
	Err error
}

func (ListLoaded) isEvent()       {}
func (CardLoaded) isEvent()       {}
func (CardGone) isEvent()         {}
func (ActivitiesLoaded) isEvent() {}
func (LoadingChanged) isEvent()   {}
func (SyncFailed) isEvent()       {}
