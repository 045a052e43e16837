//go:generate go run go.uber.org/mock/mockgen -source=signaler.go -destination=mocks/mock_signaler.go -package=mocks
package client

import (
	"github.com/dkeye/VoiceMesh/internal/protocol"
)

// Signaler sends one message to the relay.
type Signaler interface {
	Send(t protocol.MessageType, payload any) error
}
