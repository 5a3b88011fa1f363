// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolver discovers and maintains list-to-card relationships
// across three redundant sources of truth. Some homeservers silently
// drop m.space.child state events, so membership is written to the
// space hierarchy, to an aggregate state record on the space, and to a
// local file cache; reads consult them in that order and take the
// first tier that knows anything.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corkboard-dev/corkboard/kanban/cardcache"
	"github.com/corkboard-dev/corkboard/kanban/schema"
	"github.com/corkboard-dev/corkboard/lib/ref"
	"github.com/corkboard-dev/corkboard/messaging"
)

// Source identifies which tier answered a membership query.
type Source int

const (
	// SourceUnknown means no tier had any membership data.
	SourceUnknown Source = iota

	// SourcePrimary is the m.space.child state of the list space.
	SourcePrimary

	// SourceBackup is the m.kanban.cards aggregate record.
	SourceBackup

	// SourceCache is the local file cache.
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourcePrimary:
		return "primary"
	case SourceBackup:
		return "backup"
	case SourceCache:
		return "cache"
	default:
		return "unknown"
	}
}

// Membership is the result of a children query: the card IDs and the
// tier they came from, so callers can reason about staleness.
type Membership struct {
	CardIDs []ref.RoomID
	Source  Source
}

// Config configures a Resolver.
type Config struct {
	Session *messaging.Session
	Cache   *cardcache.Cache

	// ServerName is the homeserver's name, used as the routing hint
	// in m.space.child/m.space.parent via lists.
	ServerName string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Resolver reads and writes list-to-card relationships.
type Resolver struct {
	session    *messaging.Session
	cache      *cardcache.Cache
	serverName string
	logger     *slog.Logger
}

// New creates a resolver.
func New(config Config) (*Resolver, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("resolver: session is required")
	}
	if config.Cache == nil {
		return nil, fmt.Errorf("resolver: cache is required")
	}
	if config.ServerName == "" {
		return nil, fmt.Errorf("resolver: server name is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		session:    config.Session,
		cache:      config.Cache,
		serverName: config.ServerName,
		logger:     logger,
	}, nil
}

// Children resolves the cards of a list. Tiers are consulted in order
// and the first non-empty one wins; a later tier is never merged into
// an earlier one.
func (r *Resolver) Children(ctx context.Context, listID ref.RoomID) (Membership, error) {
	if cardIDs := r.childrenFromSpace(ctx, listID); len(cardIDs) > 0 {
		return Membership{CardIDs: cardIDs, Source: SourcePrimary}, nil
	}
	if cardIDs := r.childrenFromAggregate(ctx, listID); len(cardIDs) > 0 {
		r.logger.Info("space child state empty, using aggregate record",
			"list_id", listID, "cards", len(cardIDs))
		return Membership{CardIDs: cardIDs, Source: SourceBackup}, nil
	}
	if cardIDs := r.cache.All(listID); len(cardIDs) > 0 {
		r.logger.Warn("homeserver lost list membership, using local cache",
			"list_id", listID, "cards", len(cardIDs))
		return Membership{CardIDs: cardIDs, Source: SourceCache}, nil
	}
	return Membership{Source: SourceUnknown}, nil
}

func (r *Resolver) childrenFromSpace(ctx context.Context, listID ref.RoomID) []ref.RoomID {
	events, err := r.session.GetRoomState(ctx, listID)
	if err != nil {
		r.logger.Warn("room state fetch failed", "list_id", listID, "error", err)
		return nil
	}
	var cardIDs []ref.RoomID
	for _, event := range events {
		if event.Type != schema.EventTypeSpaceChild || event.StateKey == nil {
			continue
		}
		// A child event with no via routes is a released relationship.
		if via, ok := event.Content["via"].([]any); !ok || len(via) == 0 {
			continue
		}
		cardID, err := ref.ParseRoomID(*event.StateKey)
		if err != nil {
			r.logger.Warn("space child with invalid state key",
				"list_id", listID, "state_key", *event.StateKey)
			continue
		}
		cardIDs = append(cardIDs, cardID)
	}
	return cardIDs
}

func (r *Resolver) childrenFromAggregate(ctx context.Context, listID ref.RoomID) []ref.RoomID {
	raw, err := r.session.GetStateEvent(ctx, listID, schema.EventTypeCards, "")
	if err != nil {
		if !messaging.IsNotFound(err) {
			r.logger.Warn("aggregate record fetch failed", "list_id", listID, "error", err)
		}
		return nil
	}
	var aggregate schema.CardsAggregate
	if err := json.Unmarshal(raw, &aggregate); err != nil {
		r.logger.Warn("aggregate record malformed", "list_id", listID, "error", err)
		return nil
	}
	return aggregate.Cards
}

// Establish records the list-to-card relationship in all three tiers.
// The four steps are independent and best-effort: a failed step is
// logged and the rest still run, because any surviving tier keeps the
// card reachable. The returned error joins the step failures.
func (r *Resolver) Establish(ctx context.Context, listID, cardID ref.RoomID) error {
	var failures []error
	via := []string{r.serverName}

	if _, err := r.session.SendStateEvent(ctx, listID, schema.EventTypeSpaceChild,
		cardID.String(), schema.SpaceChildContent{Via: via}); err != nil {
		r.logger.Warn("space child write failed", "list_id", listID, "card_id", cardID, "error", err)
		failures = append(failures, fmt.Errorf("space child: %w", err))
	}

	if _, err := r.session.SendStateEvent(ctx, cardID, schema.EventTypeSpaceParent,
		listID.String(), schema.SpaceParentContent{Via: via, Canonical: true}); err != nil {
		r.logger.Warn("space parent write failed", "list_id", listID, "card_id", cardID, "error", err)
		failures = append(failures, fmt.Errorf("space parent: %w", err))
	}

	if err := r.appendToAggregate(ctx, listID, cardID); err != nil {
		r.logger.Warn("aggregate append failed", "list_id", listID, "card_id", cardID, "error", err)
		failures = append(failures, fmt.Errorf("aggregate: %w", err))
	}

	if err := r.cache.Add(listID, cardID); err != nil {
		r.logger.Warn("cache write failed", "list_id", listID, "card_id", cardID, "error", err)
		failures = append(failures, fmt.Errorf("cache: %w", err))
	}

	return errors.Join(failures...)
}

// appendToAggregate read-modify-writes the m.kanban.cards record. An
// unreadable record is replaced with a fresh singleton rather than
// failing, so the backup tier self-heals.
func (r *Resolver) appendToAggregate(ctx context.Context, listID, cardID ref.RoomID) error {
	aggregate := schema.CardsAggregate{}
	raw, err := r.session.GetStateEvent(ctx, listID, schema.EventTypeCards, "")
	if err == nil {
		if err := json.Unmarshal(raw, &aggregate); err != nil {
			r.logger.Warn("replacing malformed aggregate record", "list_id", listID, "error", err)
			aggregate = schema.CardsAggregate{}
		}
	}

	for _, existing := range aggregate.Cards {
		if existing == cardID {
			return nil
		}
	}
	aggregate.Cards = append(aggregate.Cards, cardID)

	_, err = r.session.SendStateEvent(ctx, listID, schema.EventTypeCards, "", aggregate)
	return err
}

// Release removes the relationship from all three tiers, best-effort,
// mirroring Establish. Used when a card moves between lists.
func (r *Resolver) Release(ctx context.Context, listID, cardID ref.RoomID) error {
	var failures []error

	// An empty content overwrites the child record, which is how the
	// space hierarchy expresses removal.
	if _, err := r.session.SendStateEvent(ctx, listID, schema.EventTypeSpaceChild,
		cardID.String(), schema.SpaceChildContent{}); err != nil {
		r.logger.Warn("space child release failed", "list_id", listID, "card_id", cardID, "error", err)
		failures = append(failures, fmt.Errorf("space child: %w", err))
	}

	// The reciprocal parent record on the card is emptied the same
	// way, or moved cards would accumulate stale canonical parents.
	if _, err := r.session.SendStateEvent(ctx, cardID, schema.EventTypeSpaceParent,
		listID.String(), schema.SpaceParentContent{}); err != nil {
		r.logger.Warn("space parent release failed", "list_id", listID, "card_id", cardID, "error", err)
		failures = append(failures, fmt.Errorf("space parent: %w", err))
	}

	if err := r.removeFromAggregate(ctx, listID, cardID); err != nil {
		r.logger.Warn("aggregate removal failed", "list_id", listID, "card_id", cardID, "error", err)
		failures = append(failures, fmt.Errorf("aggregate: %w", err))
	}

	if err := r.cache.Remove(listID, cardID); err != nil {
		r.logger.Warn("cache removal failed", "list_id", listID, "card_id", cardID, "error", err)
		failures = append(failures, fmt.Errorf("cache: %w", err))
	}

	return errors.Join(failures...)
}

func (r *Resolver) removeFromAggregate(ctx context.Context, listID, cardID ref.RoomID) error {
	raw, err := r.session.GetStateEvent(ctx, listID, schema.EventTypeCards, "")
	if err != nil {
		if messaging.IsNotFound(err) {
			return nil
		}
		return err
	}
	var aggregate schema.CardsAggregate
	if err := json.Unmarshal(raw, &aggregate); err != nil {
		return fmt.Errorf("resolver: aggregate record malformed: %w", err)
	}

	for i, existing := range aggregate.Cards {
		if existing == cardID {
			aggregate.Cards = append(aggregate.Cards[:i], aggregate.Cards[i+1:]...)
			_, err := r.session.SendStateEvent(ctx, listID, schema.EventTypeCards, "", aggregate)
			return err
		}
	}
	return nil
}

// VerifyContainer checks that the list room really is a space. A
// mismatch is logged and reported but never blocks an operation; the
// relationship machinery works on plain rooms too.
func (r *Resolver) VerifyContainer(ctx context.Context, listID ref.RoomID) bool {
	raw, err := r.session.GetStateEvent(ctx, listID, schema.EventTypeRoomCreate, "")
	if err != nil {
		r.logger.Warn("room create state unreadable", "list_id", listID, "error", err)
		return false
	}
	var content struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		r.logger.Warn("room create state malformed", "list_id", listID, "error", err)
		return false
	}
	if content.Type != "m.space" {
		r.logger.Warn("list room is not a space", "list_id", listID, "type", content.Type)
		return false
	}
	return true
}
