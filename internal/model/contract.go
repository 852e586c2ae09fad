package model

import (
	"time"

	"github.com/google/uuid"
)

// ContractStatus enumerates the states of a collaborator/student contract.
type ContractStatus string

const (
	ContractStatusPending ContractStatus = "PENDING"
	ContractStatusSigned  ContractStatus = "SIGNED"
	ContractStatusExpired ContractStatus = "EXPIRED"
)

// Contract is a signed agreement bounding a user's access in time.
type Contract struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Status    ContractStatus `json:"status"`
	SignedAt  *time.Time     `json:"signed_at,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
