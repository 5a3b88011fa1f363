// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is Corkboard's Matrix client-server API layer.
//
// A [Client] is an unauthenticated handle on a homeserver: it owns the
// base URL and the HTTP transport. A [Session] wraps a Client with an
// access token and exposes the authenticated operations the sync
// engine needs: room creation (plain rooms and spaces), state event
// reads and writes, joined-room listing, timeline pagination, and
// membership.
//
// All errors from the homeserver surface as *[MatrixError] values
// wrapped with context; use [IsMatrixError] to branch on specific
// error codes such as M_NOT_FOUND. Response bodies are read through
// lib/netutil's bounded readers.
package messaging
