package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var ErrMediaDenied = errors.New("local media unavailable")

// AudioSource produces the local audio track. The track is fed until ctx is
// done.
type AudioSource interface {
	Open(ctx context.Context) (webrtc.TrackLocal, error)
}

// LocalMedia holds the acquired local tracks.
type LocalMedia struct {
	Tracks []webrtc.TrackLocal
	stop   context.CancelFunc
}

// Stop ends every local track feed.
func (lm *LocalMedia) Stop() {
	if lm != nil && lm.stop != nil {
		lm.stop()
	}
}

// Acquisition is an in-flight request for local media.
type Acquisition struct {
	done  chan struct{}
	media *LocalMedia
	err   error
	stop  context.CancelFunc
}

// Acquire starts opening src in the background.
func Acquire(ctx context.Context, src AudioSource) *Acquisition {
	mediaCtx, stop := context.WithCancel(ctx)
	a := &Acquisition{done: make(chan struct{}), stop: stop}

	go func() {
		track, err := src.Open(mediaCtx)
		switch {
		case mediaCtx.Err() != nil:
			err = mediaCtx.Err()
		case err != nil:
			err = fmt.Errorf("%w: %v", ErrMediaDenied, err)
		}

		if err != nil {
			stop()
			a.err = err
		} else {
			a.media = &LocalMedia{Tracks: []webrtc.TrackLocal{track}, stop: stop}
		}
		close(a.done)
	}()
	return a
}

// Wait returns the acquired media or the acquisition error.
func (a *Acquisition) Wait(ctx context.Context) (*LocalMedia, error) {
	select {
	case <-a.done:
		return a.media, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel aborts the acquisition, stopping the media if it was already
// acquired.
func (a *Acquisition) Cancel() {
	a.stop()
}
