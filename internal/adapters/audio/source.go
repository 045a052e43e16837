// Package audio provides local audio sources and remote audio slots for the
// CLI client. Device capture and playback are out of scope: sources are
// synthetic or file based, slots count or record.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const frameDuration = 20 * time.Millisecond

// opusSilence is a single opus frame encoding 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func opusCapability() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

func newTrack(streamID string) (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(opusCapability(), "audio", streamID)
}

// SilenceSource feeds opus silence until ctx is done.
type SilenceSource struct {
	StreamID string
}

func (s SilenceSource) Open(ctx context.Context) (webrtc.TrackLocal, error) {
	track, err := newTrack(s.StreamID)
	if err != nil {
		return nil, err
	}
	go func() {
		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration}); err != nil {
					log.Debug().Err(err).Str("module", "audio").Msg("silence write")
				}
			}
		}
	}()
	return track, nil
}

// OggFileSource streams an opus ogg file in real time, looping at EOF.
type OggFileSource struct {
	Path     string
	StreamID string
}

func (s OggFileSource) Open(ctx context.Context) (webrtc.TrackLocal, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read ogg header %s: %w", s.Path, err)
	}
	track, err := newTrack(s.StreamID)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	go func() {
		defer f.Close()
		logger := log.With().Str("module", "audio").Str("input", s.Path).Logger()
		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()

		var lastGranule uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			page, header, err := reader.ParseNextPage()
			if errors.Is(err, io.EOF) {
				if _, err := f.Seek(0, io.SeekStart); err != nil {
					logger.Error().Err(err).Msg("rewind")
					return
				}
				if reader, _, err = oggreader.NewWith(f); err != nil {
					logger.Error().Err(err).Msg("reopen")
					return
				}
				lastGranule = 0
				continue
			}
			if err != nil {
				logger.Error().Err(err).Msg("parse page")
				return
			}

			// Granule position counts 48kHz samples.
			samples := header.GranulePosition - lastGranule
			lastGranule = header.GranulePosition
			duration := time.Duration(samples) * time.Second / 48000
			if duration <= 0 {
				duration = frameDuration
			}
			if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
				logger.Debug().Err(err).Msg("write sample")
			}
		}
	}()
	return track, nil
}
