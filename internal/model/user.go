package model

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the three account kinds.
type Role string

const (
	RoleStudent      Role = "STUDENT"
	RoleCollaborator Role = "COLLABORATOR"
	RoleAdmin        Role = "ADMIN"
)

// IsStaff reports whether the role can author or assign simulations.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleCollaborator
}

// User is an account known to the platform. Credentials live at the identity
// provider; ExternalID is the provider's subject.
type User struct {
	ID         uuid.UUID  `json:"id"`
	ExternalID string     `json:"-"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Role       Role       `json:"role"`
	ClassID    *uuid.UUID `json:"class_id,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  uuid.UUID
	Role    Role
	ClassID *uuid.UUID
	Name    string
}

// Class is a cohort of students.
type Class struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Group is an ad-hoc set of students followed by a reference collaborator.
type Group struct {
	ID                      uuid.UUID  `json:"id"`
	Name                    string     `json:"name"`
	ReferenceCollaboratorID *uuid.UUID `json:"reference_collaborator_id,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
}
