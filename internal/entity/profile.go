package entity

import (
	"time"

	"github.com/google/uuid"
)

// Profile represents a user profile for data transfer between layers. The
// balance is only ever incremented by this subsystem.
type Profile struct {
	ID              uuid.UUID `json:"id"`
	SipcoinsBalance int64     `json:"sipcoins_balance"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
