// Package protocol defines the JSON messages exchanged between clients and
// the signaling relay.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"
)

type MessageType string

// client -> relay
const (
	TypeJoin             MessageType = "join"
	TypeRelayCandidate   MessageType = "relay-candidate"
	TypeRelayDescription MessageType = "relay-description"
	TypeLeave            MessageType = "leave"
	TypePing             MessageType = "ping"
)

// relay -> client
const (
	TypeWelcome     MessageType = "welcome"
	TypeAddPeer     MessageType = "add-peer"
	TypeCandidate   MessageType = "candidate"
	TypeDescription MessageType = "description"
	TypeRemovePeer  MessageType = "remove-peer"
	TypePong        MessageType = "pong"
	TypeError       MessageType = "error"
)

// Error codes carried by TypeError.
const (
	CodeBadPayload    = "bad_payload"
	CodeUnknownType   = "unknown_type"
	CodeAlreadyJoined = "already_joined"
	CodeNotConnected  = "not_connected"
	CodeRateLimited   = "rate_limited"

	CodeParticipantMismatch = "participant_mismatch"
)

var (
	ErrMissingType  = errors.New("message type missing")
	ErrMissingSDP   = errors.New("description sdp missing")
	ErrBadSDPType   = errors.New("unsupported description type")
	ErrEmptyPayload = errors.New("payload missing")
	ErrNoCandidate  = errors.New("candidate missing")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the outer shape of every frame.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	RoomID      domain.RoomID      `json:"roomId" validate:"required,max=64"`
	Participant domain.Participant `json:"participant"`
}

// RelayCandidatePayload and RelayDescriptionPayload keep the relayed body raw:
// the relay forwards it verbatim and never interprets it.
type RelayCandidatePayload struct {
	To        domain.ConnID   `json:"toConnectionId" validate:"required"`
	Candidate json.RawMessage `json:"candidate"`
}

type RelayDescriptionPayload struct {
	To          domain.ConnID   `json:"toConnectionId" validate:"required"`
	Description json.RawMessage `json:"description"`
}

type WelcomePayload struct {
	ConnectionID domain.ConnID `json:"connectionId"`
}

type AddPeerPayload struct {
	PeerConnectionID domain.ConnID      `json:"peerConnectionId"`
	Initiator        bool               `json:"initiator"`
	RemoteUser       domain.Participant `json:"remoteUser"`
}

type CandidatePayload struct {
	Origin    domain.ConnID   `json:"originPeerConnectionId"`
	Candidate json.RawMessage `json:"candidate"`
}

type DescriptionPayload struct {
	Origin      domain.ConnID   `json:"originPeerConnectionId"`
	Description json.RawMessage `json:"description"`
}

type RemovePeerPayload struct {
	PeerConnectionID domain.ConnID        `json:"peerConnectionId"`
	RemoteUserID     domain.ParticipantID `json:"remoteUserId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Encode wraps payload (may be nil) into an envelope frame.
func Encode(t MessageType, payload any) (core.Frame, error) {
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return b, nil
}

// Decode parses the outer envelope only.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// DecodePayload unmarshals env.Payload into v and validates struct tags.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validate %s payload: %w", env.Type, err)
	}
	if vv, ok := v.(interface{ Validate() error }); ok {
		if err := vv.Validate(); err != nil {
			return fmt.Errorf("validate %s payload: %w", env.Type, err)
		}
	}
	return nil
}

// Validate checks the invariants the struct tags cannot express.
func (p JoinPayload) Validate() error {
	return p.Participant.Validate()
}

func (p RelayCandidatePayload) Validate() error {
	if len(p.Candidate) == 0 || string(p.Candidate) == "null" {
		return ErrNoCandidate
	}
	return nil
}

func (p RelayDescriptionPayload) Validate() error {
	if len(p.Description) == 0 || string(p.Description) == "null" {
		return ErrEmptyPayload
	}
	return nil
}

// Description is the RTCSessionDescriptionInit shape.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func DescriptionFromPion(desc webrtc.SessionDescription) Description {
	return Description{Type: desc.Type.String(), SDP: desc.SDP}
}

func (d Description) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch d.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%w %q", ErrBadSDPType, d.Type)
	}
	if d.SDP == "" {
		return webrtc.SessionDescription{}, ErrMissingSDP
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

// ParseDescription decodes a relayed description body.
func ParseDescription(raw json.RawMessage) (webrtc.SessionDescription, error) {
	var d Description
	if err := json.Unmarshal(raw, &d); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode description: %w", err)
	}
	return d.ToPion()
}

// ParseCandidate decodes a relayed RTCIceCandidateInit body.
func ParseCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("decode candidate: %w", err)
	}
	return c, nil
}
