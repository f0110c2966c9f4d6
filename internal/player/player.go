/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player drives the opaque encoder process that actually pushes the
// broadcast. The engine only decides what should be playing; everything past
// the source locator and stream key is this package's problem.
package player

import "context"

// NotificationKind classifies asynchronous player events.
type NotificationKind string

const (
	// ItemEnded means the current item finished playing naturally.
	ItemEnded NotificationKind = "item_ended"
	// PlayerError means playback failed; Err carries the cause.
	PlayerError NotificationKind = "player_error"
)

// Notification is an asynchronous event from the player.
type Notification struct {
	Kind NotificationKind
	Err  error
}

// Player is the protocol collaborator the session controller drives.
// Start and Switch block until playback of the item has begun or failed;
// end-of-item and mid-play failures arrive on Notifications.
type Player interface {
	Start(ctx context.Context, sourceLocator, streamKey string) error
	Switch(ctx context.Context, sourceLocator string) error
	Stop(ctx context.Context) error
	Notifications() <-chan Notification
}
