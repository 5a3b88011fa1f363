// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package adapter implements the dispatcher's Remote interface against
// a Matrix session. Each operation orchestrates the multi-step writes
// a single board mutation needs on the wire: room creation, metadata
// state events, relationship establishment, and activity timeline
// appends.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/corkboard-dev/corkboard/kanban"
	"github.com/corkboard-dev/corkboard/kanban/ordering"
	"github.com/corkboard-dev/corkboard/kanban/resolver"
	"github.com/corkboard-dev/corkboard/kanban/schema"
	"github.com/corkboard-dev/corkboard/lib/clock"
	"github.com/corkboard-dev/corkboard/lib/ref"
	"github.com/corkboard-dev/corkboard/messaging"
)

const (
	// settleAttempts and settleDelay bound the poll that waits for a
	// freshly created room to become readable. The local view can lag
	// the server's acknowledgment.
	settleAttempts = 10
	settleDelay    = 200 * time.Millisecond
)

// Config configures an Adapter.
type Config struct {
	Session  *messaging.Session
	Resolver *resolver.Resolver

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to the real clock. Tests inject a fake to drive
	// the settle poll.
	Clock clock.Clock
}

// Adapter talks to the homeserver on behalf of the dispatcher. It is
// safe for concurrent use; every method is a self-contained operation.
type Adapter struct {
	session  *messaging.Session
	resolver *resolver.Resolver
	logger   *slog.Logger
	clock    clock.Clock
}

var _ kanban.Remote = (*Adapter)(nil)

// New creates an adapter.
func New(config Config) (*Adapter, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("adapter: session is required")
	}
	if config.Resolver == nil {
		return nil, fmt.Errorf("adapter: resolver is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Adapter{
		session:  config.Session,
		resolver: config.Resolver,
		logger:   logger,
		clock:    clk,
	}, nil
}

// CreateList creates a space for a new board column, waits for it to
// settle, then tags it with the discoverable topic marker and its
// metadata record.
func (a *Adapter) CreateList(ctx context.Context, name string) (kanban.List, error) {
	existing, err := a.boardSpaces(ctx)
	if err != nil {
		return kanban.List{}, err
	}
	position := ordering.Initial + float64(len(existing))*ordering.Interval

	response, err := a.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:            name,
		Preset:          "private_chat",
		CreationContent: map[string]any{"type": "m.space"},
	})
	if err != nil {
		return kanban.List{}, fmt.Errorf("adapter: create list space: %w", err)
	}
	listID := response.RoomID

	if err := a.waitForRoom(ctx, listID); err != nil {
		return kanban.List{}, err
	}

	if err := a.session.SetTopic(ctx, listID, schema.BoardTopicMarker); err != nil {
		return kanban.List{}, fmt.Errorf("adapter: tag list topic: %w", err)
	}

	meta := schema.ListMetadata{
		Name:      name,
		Position:  position,
		CreatedAt: a.clock.Now().UTC().Format(time.RFC3339),
	}
	if _, err := a.session.SendStateEvent(ctx, listID, schema.EventTypeList, "", meta); err != nil {
		// The list works without its metadata record; discovery falls
		// back to the room name.
		a.logger.Warn("list metadata write failed", "list_id", listID, "error", err)
	}

	return kanban.List{ID: listID, Name: name, Position: position}, nil
}

// waitForRoom polls until the new room's create event is readable
// through the client-server API.
func (a *Adapter) waitForRoom(ctx context.Context, roomID ref.RoomID) error {
	var lastErr error
	for attempt := 0; attempt < settleAttempts; attempt++ {
		if attempt > 0 {
			a.clock.Sleep(settleDelay)
		}
		_, err := a.session.GetStateEvent(ctx, roomID, schema.EventTypeRoomCreate, "")
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("adapter: room %s not readable after %d attempts: %w",
		roomID, settleAttempts, lastErr)
}

// RenameList updates the column's room name and metadata record.
func (a *Adapter) RenameList(ctx context.Context, listID ref.RoomID, name string) error {
	if err := a.session.SetRoomName(ctx, listID, name); err != nil {
		return fmt.Errorf("adapter: rename list: %w", err)
	}
	meta, ok := a.listMetadata(ctx, listID)
	if ok {
		meta.Name = name
		if _, err := a.session.SendStateEvent(ctx, listID, schema.EventTypeList, "", meta); err != nil {
			a.logger.Warn("list metadata update failed", "list_id", listID, "error", err)
		}
	}
	return nil
}

// CreateCard runs the card creation pipeline. Once the room exists the
// card is created: metadata persistence and relationship establishment
// are best-effort and never roll the room back, because the resolver
// and the metadata fallback can both recover from their absence.
func (a *Adapter) CreateCard(ctx context.Context, listID ref.RoomID, title string, position float64) (kanban.Card, error) {
	response, err := a.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:   title,
		Preset: "private_chat",
	})
	if err != nil {
		return kanban.Card{}, fmt.Errorf("adapter: create card room: %w", err)
	}

	now := a.clock.Now()
	card := kanban.Card{
		ID:        response.RoomID,
		Title:     title,
		ListID:    listID,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := a.session.SendStateEvent(ctx, card.ID, schema.EventTypeCard, "",
		schema.EncodeCard(card)); err != nil {
		a.logger.Warn("card metadata write failed, will fall back to room name",
			"card_id", card.ID, "error", err)
	}

	if err := a.resolver.Establish(ctx, listID, card.ID); err != nil {
		a.logger.Warn("relationship partially established",
			"list_id", listID, "card_id", card.ID, "error", err)
	}

	a.resolver.VerifyContainer(ctx, listID)

	return card, nil
}

// LoadCard fetches an authoritative card snapshot.
func (a *Adapter) LoadCard(ctx context.Context, cardID ref.RoomID) (kanban.Card, error) {
	return a.loadCard(ctx, cardID, ref.RoomID{})
}

func (a *Adapter) loadCard(ctx context.Context, cardID, fallbackListID ref.RoomID) (kanban.Card, error) {
	raw, err := a.session.GetStateEvent(ctx, cardID, schema.EventTypeCard, "")
	switch {
	case err == nil:
		meta, err := schema.DecodeCard(raw)
		if err != nil {
			return kanban.Card{}, err
		}
		card := schema.CardFromMetadata(cardID, fallbackListID, meta)
		card.Todos = a.loadTodos(ctx, cardID)
		return card, nil

	case messaging.IsNotFound(err):
		// No metadata record. The room itself may still be a card:
		// fall back to its display name with safe defaults.
		name, nameErr := a.session.RoomName(ctx, cardID)
		if nameErr != nil {
			return kanban.Card{}, a.goneOr(cardID, nameErr)
		}
		if name == "" {
			name = cardID.String()
		}
		card := kanban.Card{
			ID:       cardID,
			Title:    name,
			ListID:   fallbackListID,
			Position: ordering.Initial,
		}
		card.Todos = a.loadTodos(ctx, cardID)
		return card, nil

	default:
		return kanban.Card{}, a.goneOr(cardID, err)
	}
}

// goneOr converts "not in the room" errors into ErrCardGone.
func (a *Adapter) goneOr(cardID ref.RoomID, err error) error {
	if messaging.IsMatrixError(err, messaging.ErrCodeForbidden) {
		return fmt.Errorf("adapter: card %s: %w", cardID, kanban.ErrCardGone)
	}
	return err
}

func (a *Adapter) loadTodos(ctx context.Context, cardID ref.RoomID) []kanban.TodoItem {
	raw, err := a.session.GetStateEvent(ctx, cardID, schema.EventTypeTodos, "")
	if err != nil {
		if !messaging.IsNotFound(err) {
			a.logger.Warn("todos fetch failed", "card_id", cardID, "error", err)
		}
		return nil
	}
	var content schema.TodosContent
	if err := json.Unmarshal(raw, &content); err != nil {
		a.logger.Warn("todos record malformed", "card_id", cardID, "error", err)
		return nil
	}
	return schema.DecodeTodos(content)
}

// UpdateMetadata persists the card's scalar fields and keeps the room
// name in sync with the title.
func (a *Adapter) UpdateMetadata(ctx context.Context, card kanban.Card) error {
	if _, err := a.session.SendStateEvent(ctx, card.ID, schema.EventTypeCard, "",
		schema.EncodeCard(card)); err != nil {
		return fmt.Errorf("adapter: update card metadata: %w", err)
	}

	name, err := a.session.RoomName(ctx, card.ID)
	if err == nil && name != card.Title {
		if err := a.session.SetRoomName(ctx, card.ID, card.Title); err != nil {
			a.logger.Warn("room name sync failed", "card_id", card.ID, "error", err)
		}
	}
	return nil
}

// SaveTodos persists the card's whole todo array.
func (a *Adapter) SaveTodos(ctx context.Context, card kanban.Card) error {
	if _, err := a.session.SendStateEvent(ctx, card.ID, schema.EventTypeTodos, "",
		schema.EncodeTodos(card.Todos)); err != nil {
		return fmt.Errorf("adapter: save todos: %w", err)
	}
	return nil
}

// MoveCard rewrites the card's metadata for its new list and position,
// then re-homes the relationship. The relationship steps are
// best-effort; the metadata record alone is enough to find the card
// again.
func (a *Adapter) MoveCard(ctx context.Context, card kanban.Card, oldListID ref.RoomID) error {
	if _, err := a.session.SendStateEvent(ctx, card.ID, schema.EventTypeCard, "",
		schema.EncodeCard(card)); err != nil {
		return fmt.Errorf("adapter: move card metadata: %w", err)
	}

	if oldListID != card.ListID {
		if err := a.resolver.Release(ctx, oldListID, card.ID); err != nil {
			a.logger.Warn("release from old list incomplete",
				"list_id", oldListID, "card_id", card.ID, "error", err)
		}
		if err := a.resolver.Establish(ctx, card.ListID, card.ID); err != nil {
			a.logger.Warn("establish on new list incomplete",
				"list_id", card.ListID, "card_id", card.ID, "error", err)
		}
	}
	return nil
}

// ArchiveCard flags the card archived in its metadata record. The room
// and its relationships are kept so the card stays recoverable.
func (a *Adapter) ArchiveCard(ctx context.Context, card kanban.Card) error {
	card.Archived = true
	if _, err := a.session.SendStateEvent(ctx, card.ID, schema.EventTypeCard, "",
		schema.EncodeCard(card)); err != nil {
		return fmt.Errorf("adapter: archive card: %w", err)
	}
	return nil
}

// SendActivity appends one history entry to the card's timeline.
func (a *Adapter) SendActivity(ctx context.Context, cardID ref.RoomID, activity kanban.Activity) error {
	if _, err := a.session.SendEvent(ctx, cardID, schema.EventTypeActivity,
		schema.EncodeActivity(activity)); err != nil {
		return fmt.Errorf("adapter: send activity: %w", err)
	}
	return nil
}

// Activities fetches the most recent history entries, oldest first.
func (a *Adapter) Activities(ctx context.Context, cardID ref.RoomID, limit int) ([]kanban.Activity, error) {
	response, err := a.session.RoomMessages(ctx, cardID, messaging.RoomMessagesOptions{
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("adapter: load activities: %w", err)
	}

	// The server pages newest first; reverse while filtering.
	var activities []kanban.Activity
	for i := len(response.Chunk) - 1; i >= 0; i-- {
		event := response.Chunk[i]
		if event.Type != schema.EventTypeActivity {
			continue
		}
		activities = append(activities, activityFromEvent(event))
	}
	return activities, nil
}

func activityFromEvent(event messaging.Event) kanban.Activity {
	activity := kanban.Activity{
		ID:        event.EventID.String(),
		CreatedAt: time.UnixMilli(event.OriginServerTS).UTC(),
		UserID:    event.Sender,
	}
	if kind, ok := event.Content["kind"].(string); ok {
		activity.Kind = kanban.ActivityKind(kind)
	}
	if text, ok := event.Content["text"].(string); ok {
		activity.Text = text
	}
	if meta, ok := event.Content["metadata"].(map[string]any); ok {
		activity.Metadata = meta
	}
	return activity
}

// Boards discovers every board column the session participates in and
// loads their cards. Archived cards and unreadable card rooms are
// skipped, not fatal.
func (a *Adapter) Boards(ctx context.Context) ([]kanban.List, []kanban.Card, error) {
	spaces, err := a.boardSpaces(ctx)
	if err != nil {
		return nil, nil, err
	}

	var lists []kanban.List
	var cards []kanban.Card
	for index, listID := range spaces {
		list := kanban.List{
			ID:       listID,
			Position: ordering.Initial + float64(index)*ordering.Interval,
		}
		if meta, ok := a.listMetadata(ctx, listID); ok {
			list.Name = meta.Name
			list.Position = meta.Position
		}
		if list.Name == "" {
			name, err := a.session.RoomName(ctx, listID)
			if err != nil {
				a.logger.Warn("list name fetch failed", "list_id", listID, "error", err)
			}
			list.Name = name
		}

		membership, err := a.resolver.Children(ctx, listID)
		if err != nil {
			a.logger.Warn("children resolution failed", "list_id", listID, "error", err)
		}
		for _, cardID := range membership.CardIDs {
			card, err := a.loadCard(ctx, cardID, listID)
			if err != nil {
				a.logger.Warn("card load failed, skipping",
					"card_id", cardID, "list_id", listID, "error", err)
				continue
			}
			if card.Archived {
				continue
			}
			cards = append(cards, card)
			list.CardIDs = append(list.CardIDs, cardID)
		}
		lists = append(lists, list)
	}
	return lists, cards, nil
}

// boardSpaces returns the joined rooms whose topic carries the board
// marker, in server order.
func (a *Adapter) boardSpaces(ctx context.Context) ([]ref.RoomID, error) {
	rooms, err := a.session.JoinedRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("adapter: list joined rooms: %w", err)
	}
	var spaces []ref.RoomID
	for _, roomID := range rooms {
		topic, err := a.session.Topic(ctx, roomID)
		if err != nil {
			a.logger.Warn("topic fetch failed", "room_id", roomID, "error", err)
			continue
		}
		if schema.IsBoardTopic(topic) {
			spaces = append(spaces, roomID)
		}
	}
	return spaces, nil
}

func (a *Adapter) listMetadata(ctx context.Context, listID ref.RoomID) (schema.ListMetadata, bool) {
	raw, err := a.session.GetStateEvent(ctx, listID, schema.EventTypeList, "")
	if err != nil {
		if !messaging.IsNotFound(err) {
			a.logger.Warn("list metadata fetch failed", "list_id", listID, "error", err)
		}
		return schema.ListMetadata{}, false
	}
	var meta schema.ListMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		a.logger.Warn("list metadata malformed", "list_id", listID, "error", err)
		return schema.ListMetadata{}, false
	}
	return meta, true
}
