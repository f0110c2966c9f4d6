/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist decides which item of an ordered playlist plays next under
// a loop mode. The cursor is pure state: it never touches the video library,
// so a deleted video id is still emitted and the caller handles the skip.
package playlist

import (
	"errors"

	"github.com/friendsincode/signalcast/internal/models"
)

// ErrEmptyPlaylist is returned when a cursor is built over zero items.
var ErrEmptyPlaylist = errors.New("playlist must contain at least one item")

// Cursor tracks position within a playlist and applies loop-mode semantics.
// Not safe for concurrent use; the session controller serializes access.
type Cursor struct {
	items      []string
	mode       models.LoopMode
	repeats    int
	position   int
	iterations int
	started    bool
	done       bool
}

// NewCursor builds a cursor over items. Repeats is normalized to 1 for every
// mode except LoopCount, which requires repeats >= 1.
func NewCursor(items []string, mode models.LoopMode, repeats int) (*Cursor, error) {
	if len(items) == 0 {
		return nil, ErrEmptyPlaylist
	}
	normalized, count, err := models.ParseLoopMode(string(mode), repeats)
	if err != nil {
		return nil, err
	}
	return &Cursor{items: items, mode: normalized, repeats: count}, nil
}

// Advance returns the next item to play, or ok=false once the sequence is
// done. The first call returns the first item; later calls apply the loop
// mode when the sequence wraps. Once done, every further call reports done.
func (c *Cursor) Advance() (string, bool) {
	if c.done {
		return "", false
	}

	if !c.started {
		c.started = true
		return c.emit()
	}

	if c.mode == models.LoopSingle {
		// Loop the item last played, whatever its index.
		return c.items[c.position], true
	}

	c.position++
	if c.position < len(c.items) {
		return c.emit()
	}

	// Wrapped past the last index: evaluate the loop mode.
	if c.mode == models.LoopNone || (c.mode == models.LoopCount && c.iterations >= c.repeats) {
		c.position = len(c.items) - 1
		c.done = true
		return "", false
	}

	c.position = 0
	return c.emit()
}

// emit returns the item at the current position, counting a completed pass
// when it is the last index. LoopSingle never completes passes.
func (c *Cursor) emit() (string, bool) {
	if c.mode != models.LoopSingle && c.position == len(c.items)-1 {
		c.iterations++
	}
	return c.items[c.position], true
}

// Reset returns the cursor to the start of the sequence. Used when an operator
// restarts playback without tearing down the session.
func (c *Cursor) Reset() {
	c.position = 0
	c.iterations = 0
	c.started = false
	c.done = false
}

// Position reports the current zero-based index.
func (c *Cursor) Position() int {
	return c.position
}

// Iterations reports how many full passes have completed.
func (c *Cursor) Iterations() int {
	return c.iterations
}

// Len reports the playlist length.
func (c *Cursor) Len() int {
	return len(c.items)
}
