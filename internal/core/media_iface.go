package core

import (
	"context"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is the real-time connection to one remote peer.
type MediaConnection interface {
	// AddLocalTrack attaches a local track before negotiation starts.
	AddLocalTrack(track webrtc.TrackLocal) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a remote track arrives.
	// ctx is cancelled when the connection closes.
	OnTrack(func(ctx context.Context, src RTPSource))

	CreateAndSetOffer() (webrtc.SessionDescription, error)
	CreateAndSetAnswer() (webrtc.SessionDescription, error)
	ApplyRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error

	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription

	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
}

// RTPSource is a remote track as seen by the application.
type RTPSource interface {
	ID() string
	ReadRTP() (*rtp.Packet, error)
}

// Slot is where one participant's remote audio is rendered.
type Slot interface {
	WriteRTP(*rtp.Packet) error
}
