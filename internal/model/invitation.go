package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvitationStatus enumerates invitation token states.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationRedeemed InvitationStatus = "redeemed"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation is a single-use token granting one student entry to one exam.
// It is validated any number of times while pending, and redeemed exactly
// once; redemption is a compare-and-swap at the storage layer.
type Invitation struct {
	ID           uuid.UUID        `json:"id"`
	Token        string           `json:"token"`
	ExamID       uuid.UUID        `json:"exam_id"`
	StudentEmail string           `json:"student_email"`
	Status       InvitationStatus `json:"status"`
	ExpiresAt    time.Time        `json:"expires_at"`
	RedeemedAt   *time.Time       `json:"redeemed_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// NewInvitationToken generates an opaque token string. Two UUIDs give 256
// bits so tokens are not guessable from issuance order.
func NewInvitationToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// ValidateInvitationRequest is the payload for checking a token.
type ValidateInvitationRequest struct {
	Token string `json:"token" binding:"required,min=16,max=128"`
}

// RedeemInvitationRequest is the payload for consuming a token.
type RedeemInvitationRequest struct {
	Token string `json:"token" binding:"required,min=16,max=128"`
}

// CreateInvitationRequest is the teacher-side payload for issuing a token.
type CreateInvitationRequest struct {
	StudentEmail string `json:"student_email" binding:"required,email"`
	TTLHours     int    `json:"ttl_hours" binding:"omitempty,min=1,max=720"`
}
