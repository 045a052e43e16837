package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// CountingSlot discards audio and keeps statistics.
type CountingSlot struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
}

func (s *CountingSlot) WriteRTP(pkt *rtp.Packet) error {
	s.packets.Add(1)
	s.bytes.Add(uint64(len(pkt.Payload)))
	return nil
}

func (s *CountingSlot) Packets() uint64 { return s.packets.Load() }
func (s *CountingSlot) Bytes() uint64   { return s.bytes.Load() }

// OggSlot records a remote opus stream to an ogg file.
type OggSlot struct {
	CountingSlot

	mu sync.Mutex
	w  *oggwriter.OggWriter
}

// NewOggSlot creates <dir>/<name>.ogg.
func NewOggSlot(dir, name string) (*OggSlot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("record dir: %w", err)
	}
	w, err := oggwriter.New(filepath.Join(dir, name+".ogg"), 48000, 2)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return &OggSlot{w: w}, nil
}

func (s *OggSlot) WriteRTP(pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return os.ErrClosed
	}
	if err := s.w.WriteRTP(pkt); err != nil {
		return err
	}
	return s.CountingSlot.WriteRTP(pkt)
}

func (s *OggSlot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}
