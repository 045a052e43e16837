// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxParticipantIDLen = 64
	MaxDisplayNameLen   = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrParticipantIDEmpty = errors.New("participant id empty")
	ErrParticipantIDLong  = errors.New("participant id too long")
)

type ParticipantID string

// Participant is a conference identity, independent of any transport connection.
// It is created once per client lifetime and never mutated afterwards.
type Participant struct {
	ID          ParticipantID `json:"id" validate:"required,max=64"`
	DisplayName string        `json:"displayName" validate:"required,max=36"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(displayName string) (Participant, error) {
	if err := checkDisplayName(displayName); err != nil {
		return Participant{}, err
	}
	return Participant{ID: ParticipantID(uuid.NewString()), DisplayName: displayName}, nil
}

func (p Participant) Validate() error {
	if len(p.ID) == 0 {
		return ErrParticipantIDEmpty
	}
	if len(p.ID) > MaxParticipantIDLen {
		return ErrParticipantIDLong
	}
	return checkDisplayName(p.DisplayName)
}

func checkDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
