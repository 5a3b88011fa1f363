// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package kanban

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corkboard-dev/corkboard/kanban/ordering"
	"github.com/corkboard-dev/corkboard/lib/clock"
	"github.com/corkboard-dev/corkboard/lib/ref"
)

// ErrCardGone is returned (wrapped) by Remote.LoadCard when the card's
// backing room no longer exists or is inaccessible.
var ErrCardGone = errors.New("kanban: card room gone")

// activityPageSize bounds one timeline fetch.
const activityPageSize = 50

// Remote is the synchronization surface the dispatcher drives. The
// adapter package implements it against a Matrix session; tests
// substitute fakes.
type Remote interface {
	// Boards loads every board the session participates in, with the
	// cards of each list already resolved and archived cards filtered
	// out.
	Boards(ctx context.Context) ([]List, []Card, error)

	CreateList(ctx context.Context, name string) (List, error)
	RenameList(ctx context.Context, listID ref.RoomID, name string) error
	CreateCard(ctx context.Context, listID ref.RoomID, title string, position float64) (Card, error)

	// LoadCard fetches an authoritative card snapshot. Returns an
	// error wrapping ErrCardGone when the backing room is missing.
	LoadCard(ctx context.Context, cardID ref.RoomID) (Card, error)

	// UpdateMetadata persists the card's scalar fields. SaveTodos
	// persists the whole todo array; there are no partial todo writes.
	UpdateMetadata(ctx context.Context, card Card) error
	SaveTodos(ctx context.Context, card Card) error

	// MoveCard persists the card's new list and position, releasing
	// the relationship to oldListID and establishing it on the card's
	// current ListID.
	MoveCard(ctx context.Context, card Card, oldListID ref.RoomID) error

	// ArchiveCard flags the card archived. The room is kept.
	ArchiveCard(ctx context.Context, card Card) error

	SendActivity(ctx context.Context, cardID ref.RoomID, activity Activity) error
	Activities(ctx context.Context, cardID ref.RoomID, limit int) ([]Activity, error)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Remote Remote

	// UserID stamps locally created activity entries.
	UserID ref.UserID

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to the real clock.
	Clock clock.Clock

	// EventBuffer is the event channel capacity (default 64).
	EventBuffer int
}

// Dispatcher owns BoardState mutation. Dispatch and Apply must be
// called from the same goroutine; remote work runs on per-operation
// goroutines whose only output is the event channel.
type Dispatcher struct {
	state  *BoardState
	remote Remote
	userID ref.UserID
	logger *slog.Logger
	clock  clock.Clock
	events chan Event
}

// NewDispatcher creates a dispatcher over the given state.
func NewDispatcher(state *BoardState, config DispatcherConfig) (*Dispatcher, error) {
	if state == nil {
		return nil, fmt.Errorf("kanban: state is required")
	}
	if config.Remote == nil {
		return nil, fmt.Errorf("kanban: remote is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	buffer := config.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		state:  state,
		remote: config.Remote,
		userID: config.UserID,
		logger: logger,
		clock:  clk,
		events: make(chan Event, buffer),
	}, nil
}

// Events is the reconciliation channel. The state owner drains it and
// feeds each event to Apply.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// Apply folds one reconciliation event into the board state.
func (d *Dispatcher) Apply(event Event) {
	switch event := event.(type) {
	case ListLoaded:
		d.state.UpsertList(event.List)
	case CardLoaded:
		d.state.UpsertCard(event.Card)
	case CardGone:
		d.state.RemoveCard(event.CardID)
	case ActivitiesLoaded:
		d.state.SetActivities(event.CardID, event.Activities)
	case LoadingChanged:
		d.state.SetLoading(event.Loading)
	case SyncFailed:
		d.logger.Warn("sync failed", "op", event.Op, "error", event.Err)
		d.state.SetError(fmt.Sprintf("%s: %v", event.Op, event.Err))
	}
}

// Dispatch applies the intent's optimistic mutation synchronously and
// launches the matching remote operation. Remote failure never rolls
// the local mutation back; it surfaces as a SyncFailed event.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent) {
	switch intent := intent.(type) {
	case LoadBoards:
		d.loadBoards(ctx)
	case CreateList:
		d.createList(ctx, intent)
	case RenameList:
		d.renameList(ctx, intent)
	case CreateCard:
		d.createCard(ctx, intent)
	case OpenCard:
		d.openCard(ctx, intent)
	case MoveCard:
		d.moveCard(ctx, intent)
	case UpdateCardTitle:
		d.updateTitle(ctx, intent)
	case UpdateCardDescription:
		d.updateDescription(ctx, intent)
	case DeleteCard:
		d.deleteCard(ctx, intent)
	case AddTodo:
		d.addTodo(ctx, intent)
	case ToggleTodo:
		d.toggleTodo(ctx, intent)
	case UpdateTodoText:
		d.updateTodoText(ctx, intent)
	case DeleteTodo:
		d.deleteTodo(ctx, intent)
	case AddTag:
		d.addTag(ctx, intent)
	case RemoveTag:
		d.removeTag(ctx, intent)
	case SetEndTime:
		d.setEndTime(ctx, intent)
	case ClearEndTime:
		d.clearEndTime(ctx, intent)
	case AddComment:
		d.addComment(ctx, intent)
	}
}

func (d *Dispatcher) emit(event Event) {
	d.events <- event
}

func (d *Dispatcher) loadBoards(ctx context.Context) {
	d.state.SetLoading(true)
	d.state.SetError("")
	go func() {
		lists, cards, err := d.remote.Boards(ctx)
		if err != nil {
			d.emit(SyncFailed{Op: "load boards", Err: err})
			d.emit(LoadingChanged{Loading: false})
			return
		}
		for _, list := range lists {
			d.emit(ListLoaded{List: list})
		}
		for _, card := range cards {
			d.emit(CardLoaded{Card: card})
		}
		d.emit(LoadingChanged{Loading: false})
	}()
}

func (d *Dispatcher) createList(ctx context.Context, intent CreateList) {
	// Not optimistic: the list has no identity until the space exists.
	d.state.SetLoading(true)
	go func() {
		list, err := d.remote.CreateList(ctx, intent.Name)
		if err != nil {
			d.emit(SyncFailed{Op: "create list", Err: err})
			d.emit(LoadingChanged{Loading: false})
			return
		}
		d.emit(ListLoaded{List: list})
		d.emit(LoadingChanged{Loading: false})
	}()
}

func (d *Dispatcher) renameList(ctx context.Context, intent RenameList) {
	list := d.state.List(intent.ListID)
	if list == nil {
		d.logger.Warn("rename of unknown list", "list_id", intent.ListID)
		return
	}
	list.Name = intent.Name
	go func() {
		if err := d.remote.RenameList(ctx, intent.ListID, intent.Name); err != nil {
			d.emit(SyncFailed{Op: "rename list", Err: err})
		}
	}()
}

func (d *Dispatcher) createCard(ctx context.Context, intent CreateCard) {
	if d.state.List(intent.ListID) == nil {
		d.logger.Warn("create card in unknown list", "list_id", intent.ListID)
		return
	}
	// Append after the current tail. Appends cannot exhaust precision.
	var before *float64
	if cards := d.state.ListCards(intent.ListID); len(cards) > 0 {
		tail := cards[len(cards)-1].Position
		before = &tail
	}
	position, err := ordering.Between(before, nil)
	if err != nil {
		d.emit(SyncFailed{Op: "create card", Err: err})
		return
	}

	// Not optimistic: the card has no identity until the room exists.
	d.state.SetLoading(true)
	go func() {
		card, err := d.remote.CreateCard(ctx, intent.ListID, intent.Title, position)
		if err != nil {
			d.emit(SyncFailed{Op: "create card", Err: err})
			d.emit(LoadingChanged{Loading: false})
			return
		}
		d.emit(CardLoaded{Card: card})
		d.emit(LoadingChanged{Loading: false})
	}()
}

func (d *Dispatcher) openCard(ctx context.Context, intent OpenCard) {
	d.state.SelectedCardID = intent.CardID
	go func() {
		card, err := d.remote.LoadCard(ctx, intent.CardID)
		switch {
		case errors.Is(err, ErrCardGone):
			d.emit(CardGone{CardID: intent.CardID})
			return
		case err != nil:
			d.emit(SyncFailed{Op: "open card", Err: err})
			return
		}
		d.emit(CardLoaded{Card: card})

		activities, err := d.remote.Activities(ctx, intent.CardID, activityPageSize)
		if err != nil {
			d.emit(SyncFailed{Op: "load activities", Err: err})
			return
		}
		d.emit(ActivitiesLoaded{CardID: intent.CardID, Activities: activities})
	}()
}

func (d *Dispatcher) moveCard(ctx context.Context, intent MoveCard) {
	card := d.state.Card(intent.CardID)
	if card == nil {
		d.logger.Warn("move of unknown card", "card_id", intent.CardID)
		return
	}
	target := d.state.List(intent.ToListID)
	if target == nil {
		d.logger.Warn("move to unknown list", "list_id", intent.ToListID)
		return
	}
	oldListID := card.ListID
	now := d.clock.Now()

	// Siblings in display order, without the moving card itself.
	siblings := make([]*Card, 0)
	for _, sibling := range d.state.ListCards(intent.ToListID) {
		if sibling.ID != intent.CardID {
			siblings = append(siblings, sibling)
		}
	}
	index := intent.Index
	if index < 0 {
		index = 0
	}
	if index > len(siblings) {
		index = len(siblings)
	}

	position, err := ordering.Between(neighborBounds(siblings, index))
	var renumbered []Card
	if errors.Is(err, ordering.ErrPrecisionExhausted) {
		// The gap is spent; renumber the whole target list, persist
		// each sibling, and derive the position from the fresh keys.
		ordering.ReorderAll(siblings)
		for _, sibling := range siblings {
			sibling.Touch(now)
			renumbered = append(renumbered, sibling.Clone())
		}
		position, err = ordering.Between(neighborBounds(siblings, index))
	}
	if err != nil {
		d.emit(SyncFailed{Op: "move card", Err: err})
		return
	}

	card.ListID = intent.ToListID
	card.Position = position
	card.Touch(now)
	d.state.UpsertCard(*card)

	var activity *Activity
	if oldListID != intent.ToListID {
		entry := NewActivity(ActivityStatusChange,
			fmt.Sprintf("moved to %s", target.Name), d.userID, now)
		d.state.AppendActivity(card.ID, entry)
		activity = &entry
	}

	snapshot := card.Clone()
	go func() {
		for _, sibling := range renumbered {
			if err := d.remote.UpdateMetadata(ctx, sibling); err != nil {
				d.emit(SyncFailed{Op: "renumber card", Err: err})
			}
		}
		if err := d.remote.MoveCard(ctx, snapshot, oldListID); err != nil {
			d.emit(SyncFailed{Op: "move card", Err: err})
			return
		}
		if activity != nil {
			d.sendActivity(ctx, snapshot.ID, *activity)
		}
	}()
}

// neighborBounds returns the position bounds around an insertion index.
func neighborBounds(siblings []*Card, index int) (before, after *float64) {
	if index > 0 {
		p := siblings[index-1].Position
		before = &p
	}
	if index < len(siblings) {
		p := siblings[index].Position
		after = &p
	}
	return before, after
}

func (d *Dispatcher) updateTitle(ctx context.Context, intent UpdateCardTitle) {
	d.mutateCard(ctx, "update title", intent.CardID, d.remote.UpdateMetadata,
		func(card *Card) *Activity {
			card.Title = intent.Title
			return d.record(ActivityTitleChanged, intent.Title)
		})
}

func (d *Dispatcher) updateDescription(ctx context.Context, intent UpdateCardDescription) {
	d.mutateCard(ctx, "update description", intent.CardID, d.remote.UpdateMetadata,
		func(card *Card) *Activity {
			card.Description = intent.Description
			return d.record(ActivityDescriptionChanged, "description updated")
		})
}

func (d *Dispatcher) deleteCard(ctx context.Context, intent DeleteCard) {
	card := d.state.Card(intent.CardID)
	if card == nil {
		d.logger.Warn("delete of unknown card", "card_id", intent.CardID)
		return
	}
	snapshot := card.Clone()
	snapshot.Archived = true
	snapshot.Touch(d.clock.Now())
	d.state.RemoveCard(intent.CardID)

	go func() {
		if err := d.remote.ArchiveCard(ctx, snapshot); err != nil {
			d.emit(SyncFailed{Op: "delete card", Err: err})
		}
	}()
}

func (d *Dispatcher) addTodo(ctx context.Context, intent AddTodo) {
	d.mutateCard(ctx, "add todo", intent.CardID, d.remote.SaveTodos,
		func(card *Card) *Activity {
			card.Todos = append(card.Todos, NewTodoItem(intent.Text, d.clock.Now()))
			return d.record(ActivityTodoAdded, intent.Text)
		})
}

func (d *Dispatcher) toggleTodo(ctx context.Context, intent ToggleTodo) {
	d.mutateCard(ctx, "toggle todo", intent.CardID, d.remote.SaveTodos,
		func(card *Card) *Activity {
			todo := card.Todo(intent.TodoID)
			if todo == nil {
				return nil
			}
			if todo.Completed {
				todo.Completed = false
				todo.CompletedAt = nil
				return d.record(ActivityTodoUncompleted, todo.Text)
			}
			now := d.clock.Now()
			todo.Completed = true
			todo.CompletedAt = &now
			return d.record(ActivityTodoCompleted, todo.Text)
		})
}

func (d *Dispatcher) updateTodoText(ctx context.Context, intent UpdateTodoText) {
	d.mutateCard(ctx, "update todo", intent.CardID, d.remote.SaveTodos,
		func(card *Card) *Activity {
			if todo := card.Todo(intent.TodoID); todo != nil {
				todo.Text = intent.Text
			}
			return nil
		})
}

func (d *Dispatcher) deleteTodo(ctx context.Context, intent DeleteTodo) {
	d.mutateCard(ctx, "delete todo", intent.CardID, d.remote.SaveTodos,
		func(card *Card) *Activity {
			for i, todo := range card.Todos {
				if todo.ID == intent.TodoID {
					card.Todos = append(card.Todos[:i], card.Todos[i+1:]...)
					break
				}
			}
			return nil
		})
}

func (d *Dispatcher) addTag(ctx context.Context, intent AddTag) {
	d.mutateCard(ctx, "add tag", intent.CardID, d.remote.UpdateMetadata,
		func(card *Card) *Activity {
			for _, tag := range card.Tags {
				if tag == intent.Tag {
					return nil
				}
			}
			card.Tags = append(card.Tags, intent.Tag)
			return d.record(ActivityTagAdded, intent.Tag)
		})
}

func (d *Dispatcher) removeTag(ctx context.Context, intent RemoveTag) {
	d.mutateCard(ctx, "remove tag", intent.CardID, d.remote.UpdateMetadata,
		func(card *Card) *Activity {
			for i, tag := range card.Tags {
				if tag == intent.Tag {
					card.Tags = append(card.Tags[:i], card.Tags[i+1:]...)
					return d.record(ActivityTagRemoved, intent.Tag)
				}
			}
			return nil
		})
}

func (d *Dispatcher) setEndTime(ctx context.Context, intent SetEndTime) {
	d.mutateCard(ctx, "set end time", intent.CardID, d.remote.UpdateMetadata,
		func(card *Card) *Activity {
			endTime := intent.EndTime
			card.EndTime = &endTime
			return d.record(ActivityEndTimeSet, endTime.Format("2006-01-02 15:04"))
		})
}

func (d *Dispatcher) clearEndTime(ctx context.Context, intent ClearEndTime) {
	d.mutateCard(ctx, "clear end time", intent.CardID, d.remote.UpdateMetadata,
		func(card *Card) *Activity {
			card.EndTime = nil
			return d.record(ActivityEndTimeRemoved, "due time removed")
		})
}

func (d *Dispatcher) addComment(ctx context.Context, intent AddComment) {
	card := d.state.Card(intent.CardID)
	if card == nil {
		d.logger.Warn("comment on unknown card", "card_id", intent.CardID)
		return
	}
	entry := NewActivity(ActivityComment, intent.Text, d.userID, d.clock.Now())
	d.state.AppendActivity(intent.CardID, entry)

	go func() {
		if err := d.remote.SendActivity(ctx, intent.CardID, entry); err != nil {
			d.emit(SyncFailed{Op: "add comment", Err: err})
			return
		}
		activities, err := d.remote.Activities(ctx, intent.CardID, activityPageSize)
		if err != nil {
			d.emit(SyncFailed{Op: "load activities", Err: err})
			return
		}
		d.emit(ActivitiesLoaded{CardID: intent.CardID, Activities: activities})
	}()
}

// mutateCard applies an optimistic mutation to a card and persists the
// result on a worker goroutine. The mutation may return an activity to
// append locally and send after a successful persist.
func (d *Dispatcher) mutateCard(ctx context.Context, op string, cardID ref.RoomID,
	persist func(context.Context, Card) error, mutate func(*Card) *Activity) {
	card := d.state.Card(cardID)
	if card == nil {
		d.logger.Warn("mutation of unknown card", "op", op, "card_id", cardID)
		return
	}
	activity := mutate(card)
	card.Touch(d.clock.Now())
	if activity != nil {
		d.state.AppendActivity(cardID, *activity)
	}

	snapshot := card.Clone()
	go func() {
		if err := persist(ctx, snapshot); err != nil {
			d.emit(SyncFailed{Op: op, Err: err})
			return
		}
		if activity != nil {
			d.sendActivity(ctx, cardID, *activity)
		}
	}()
}

func (d *Dispatcher) record(kind ActivityKind, text string) *Activity {
	entry := NewActivity(kind, text, d.userID, d.clock.Now())
	return &entry
}

// sendActivity is best-effort: a lost history entry is logged, not
// surfaced as a sync failure.
func (d *Dispatcher) sendActivity(ctx context.Context, cardID ref.RoomID, activity Activity) {
	if err := d.remote.SendActivity(ctx, cardID, activity); err != nil {
		d.logger.Warn("activity send failed",
			"card_id", cardID, "kind", activity.Kind, "error", err)
	}
}
