/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package session

import "errors"

var (
	// ErrInvalidConfig indicates a malformed start request (empty playlist or
	// stream key). Enforced here as the authoritative gate, not in the UI.
	ErrInvalidConfig = errors.New("invalid stream config")

	// ErrSessionActive indicates the single session slot is occupied.
	ErrSessionActive = errors.New("a broadcast session is already active")

	// ErrNotLive indicates an operation that requires a live session.
	ErrNotLive = errors.New("session is not live")

	// ErrStartFailed indicates the player could not begin the broadcast.
	ErrStartFailed = errors.New("player start failed")

	// ErrPlayerTimeout indicates a player call exceeded its deadline.
	ErrPlayerTimeout = errors.New("player call timed out")

	// ErrNoPlayableContent indicates every id in one full playlist pass
	// failed to resolve or play.
	ErrNoPlayableContent = errors.New("no playable content in playlist")
)
