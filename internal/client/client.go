// Package client is the conference participant: it joins a room through the
// relay and keeps a media session with every other member.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

var ErrRelayLost = errors.New("signaling relay connection lost")

// Transport is a connected signaling channel. Incoming is closed when the
// connection is lost.
type Transport interface {
	Signaler
	Incoming() <-chan protocol.Envelope
	Close()
}

type Dialer func(ctx context.Context) (Transport, error)

// SlotProvider creates the rendering slot for a remote participant.
type SlotProvider func(p domain.Participant) (core.Slot, error)

type Options struct {
	Room    domain.RoomID
	Self    domain.Participant
	Source  AudioSource
	Factory ConnectionFactory
	Dial    Dialer
	Slots   SlotProvider
}

type Client struct {
	opts Options
	view *View

	mu       sync.Mutex
	mesh     *Mesh
	connID   domain.ConnID
	provided map[domain.ParticipantID]struct{}

	logger zerolog.Logger
}

func New(opts Options) *Client {
	c := &Client{
		opts:     opts,
		view:     NewView(),
		provided: make(map[domain.ParticipantID]struct{}),
		logger: log.With().Str("module", "client").
			Str("room", string(opts.Room)).
			Str("participant", string(opts.Self.ID)).
			Logger(),
	}
	c.view.OnChange(c.provideSlots)
	return c
}

func (c *Client) View() *View { return c.view }

// ConnID is the relay-assigned id, empty until welcomed.
func (c *Client) ConnID() domain.ConnID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

func (c *Client) Sessions() []PeerInfo {
	c.mu.Lock()
	mesh := c.mesh
	c.mu.Unlock()
	if mesh == nil {
		return nil
	}
	return mesh.Sessions()
}

// Run dials the relay and acquires local media concurrently, joins the room
// and serves signaling until ctx is done or the relay is lost.
func (c *Client) Run(ctx context.Context) error {
	var (
		tr  Transport
		lm  *LocalMedia
		acq = Acquire(ctx, c.opts.Source)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := c.opts.Dial(gctx)
		if err != nil {
			return fmt.Errorf("dial relay: %w", err)
		}
		tr = t
		return nil
	})
	g.Go(func() error {
		m, err := acq.Wait(gctx)
		if err != nil {
			return err
		}
		lm = m
		return nil
	})
	if err := g.Wait(); err != nil {
		acq.Cancel()
		if tr != nil {
			tr.Close()
		}
		return err
	}

	mesh := NewMesh(tr, c.opts.Factory, c.view, lm)
	c.mu.Lock()
	c.mesh = mesh
	c.mu.Unlock()

	stop := func() {
		mesh.Shutdown()
		lm.Stop()
	}

	c.view.Add(c.opts.Self)
	if err := tr.Send(protocol.TypeJoin, protocol.JoinPayload{RoomID: c.opts.Room, Participant: c.opts.Self}); err != nil {
		stop()
		tr.Close()
		return fmt.Errorf("send join: %w", err)
	}
	c.logger.Info().Msg("join sent")

	for {
		select {
		case <-ctx.Done():
			if err := tr.Send(protocol.TypeLeave, nil); err != nil {
				c.logger.Debug().Err(err).Msg("leave not sent")
			}
			stop()
			tr.Close()
			c.logger.Info().Msg("left room")
			return nil
		case env, ok := <-tr.Incoming():
			if !ok {
				c.logger.Warn().Msg("relay connection lost")
				stop()
				return ErrRelayLost
			}
			if err := c.dispatch(mesh, env); err != nil {
				if errors.Is(err, ErrUnknownPeer) {
					c.logger.Error().Err(err).Msg("fatal signaling error")
					stop()
					tr.Close()
					return err
				}
				c.logger.Error().Err(err).Str("type", string(env.Type)).Msg("signal handling failed")
			}
		}
	}
}

func (c *Client) dispatch(mesh *Mesh, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeWelcome:
		var p protocol.WelcomePayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			return err
		}
		c.mu.Lock()
		c.connID = p.ConnectionID
		c.mu.Unlock()
		c.logger.Info().Str("conn", string(p.ConnectionID)).Msg("welcomed")
	case protocol.TypeAddPeer:
		var p protocol.AddPeerPayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			return err
		}
		return mesh.AddPeer(p)
	case protocol.TypeDescription:
		var p protocol.DescriptionPayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			return err
		}
		return mesh.HandleDescription(p.Origin, p.Description)
	case protocol.TypeCandidate:
		var p protocol.CandidatePayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			return err
		}
		return mesh.HandleCandidate(p.Origin, p.Candidate)
	case protocol.TypeRemovePeer:
		var p protocol.RemovePeerPayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			return err
		}
		mesh.RemovePeer(p)
	case protocol.TypePong:
	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			return err
		}
		c.logger.Warn().Str("code", p.Code).Str("message", p.Message).Msg("relay error")
	default:
		c.logger.Warn().Str("type", string(env.Type)).Msg("unknown message from relay")
	}
	return nil
}

// provideSlots hands a slot to every remote member that has none yet.
func (c *Client) provideSlots(members []domain.Participant) {
	if c.opts.Slots == nil {
		return
	}
	c.mu.Lock()
	current := lo.SliceToMap(members, func(p domain.Participant) (domain.ParticipantID, struct{}) { return p.ID, struct{}{} })
	for id := range c.provided {
		if _, still := current[id]; !still {
			delete(c.provided, id)
		}
	}
	fresh := lo.Filter(members, func(p domain.Participant, _ int) bool {
		_, done := c.provided[p.ID]
		return p.ID != c.opts.Self.ID && !done
	})
	for _, p := range fresh {
		c.provided[p.ID] = struct{}{}
	}
	c.mu.Unlock()

	for _, p := range fresh {
		slot, err := c.opts.Slots(p)
		if err != nil {
			c.logger.Error().Err(err).Str("remote", string(p.ID)).Msg("slot provider failed")
			continue
		}
		c.view.ProvideSlot(p.ID, slot)
	}
}
