/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// GStreamerPlayer runs one gst-launch process per playing item, muxing the
// source to FLV and pushing it to the RTMP ingest. Process exit with status 0
// is reported as ItemEnded; a non-zero exit while playing is a PlayerError.
type GStreamerPlayer struct {
	gstBin    string
	ingestURL string
	logger    zerolog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	done      chan struct{}
	streamKey string
	stopping  bool

	notifications chan Notification
}

// NewGStreamerPlayer creates a player pushing to ingestURL via gstBin.
func NewGStreamerPlayer(gstBin, ingestURL string, logger zerolog.Logger) *GStreamerPlayer {
	return &GStreamerPlayer{
		gstBin:        gstBin,
		ingestURL:     strings.TrimRight(ingestURL, "/"),
		logger:        logger.With().Str("component", "player").Logger(),
		notifications: make(chan Notification, 16),
	}
}

// Notifications returns the asynchronous event channel.
func (p *GStreamerPlayer) Notifications() <-chan Notification {
	return p.notifications
}

// Start launches playback of the first item for a new broadcast.
func (p *GStreamerPlayer) Start(ctx context.Context, sourceLocator, streamKey string) error {
	p.mu.Lock()
	p.streamKey = streamKey
	p.mu.Unlock()
	return p.launch(ctx, sourceLocator)
}

// Switch stops the current item and launches the next one on the same stream.
func (p *GStreamerPlayer) Switch(ctx context.Context, sourceLocator string) error {
	if err := p.terminate(); err != nil {
		return fmt.Errorf("terminate previous item: %w", err)
	}
	return p.launch(ctx, sourceLocator)
}

// Stop terminates playback. Safe to call when nothing is playing.
func (p *GStreamerPlayer) Stop(ctx context.Context) error {
	return p.terminate()
}

func (p *GStreamerPlayer) launch(ctx context.Context, sourceLocator string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil && p.done != nil {
		select {
		case <-p.done:
			// Previous process has exited, ok to start new one
		default:
			return fmt.Errorf("player already running")
		}
	}

	launch := BuildLaunch(sourceLocator, p.ingestURL, p.streamKey)

	// Use shell to properly parse the GStreamer pipeline string. The process
	// is intentionally not bound to ctx: ctx bounds the start call, not the
	// lifetime of playback.
	shellCmd := fmt.Sprintf("%s -e %s", p.gstBin, launch)
	cmd := exec.Command("sh", "-c", shellCmd)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	p.cmd = cmd
	p.done = make(chan struct{})
	p.stopping = false

	go p.wait(p.done, cmd)

	p.logger.Debug().Str("source", sourceLocator).Msg("pipeline launched")
	return nil
}

// wait observes process exit and turns it into a notification unless the exit
// was operator initiated.
func (p *GStreamerPlayer) wait(done chan struct{}, cmd *exec.Cmd) {
	err := cmd.Wait()
	close(done)

	p.mu.Lock()
	deliberate := p.stopping
	p.mu.Unlock()

	if deliberate {
		p.logger.Debug().Msg("pipeline stopped")
		return
	}

	if err != nil {
		p.logger.Warn().Err(err).Msg("pipeline exited with error")
		p.notify(Notification{Kind: PlayerError, Err: err})
		return
	}

	p.logger.Debug().Msg("pipeline reached end of item")
	p.notify(Notification{Kind: ItemEnded})
}

func (p *GStreamerPlayer) notify(n Notification) {
	select {
	case p.notifications <- n:
	default:
		p.logger.Warn().Str("kind", string(n.Kind)).Msg("notification dropped, channel full")
	}
}

func (p *GStreamerPlayer) terminate() error {
	p.mu.Lock()
	cmd := p.cmd
	done := p.done
	p.stopping = true
	p.mu.Unlock()

	if cmd == nil || done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-time.After(5 * time.Second):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	case <-done:
	}

	return nil
}

// BuildLaunch renders the gst-launch pipeline description for one item.
// Local paths are read with filesrc; http(s) locators stream via souphttpsrc.
func BuildLaunch(sourceLocator, ingestURL, streamKey string) string {
	var src string
	if strings.HasPrefix(sourceLocator, "http://") || strings.HasPrefix(sourceLocator, "https://") {
		src = fmt.Sprintf("souphttpsrc location=%q", sourceLocator)
	} else {
		src = fmt.Sprintf("filesrc location=%q", sourceLocator)
	}

	target := fmt.Sprintf("%s/%s", strings.TrimRight(ingestURL, "/"), streamKey)

	return fmt.Sprintf(
		"%s ! decodebin name=d "+
			"d. ! queue ! videoconvert ! x264enc tune=zerolatency bitrate=2500 key-int-max=60 ! queue ! mux. "+
			"d. ! queue ! audioconvert ! audioresample ! voaacenc bitrate=128000 ! queue ! mux. "+
			"flvmux name=mux streamable=true ! rtmpsink location=%q",
		src, target+" live=1")
}
