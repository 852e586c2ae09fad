package model

import (
	"time"

	"github.com/google/uuid"
)

// TargetType enumerates who an assignment is addressed to.
type TargetType string

const (
	TargetTypeStudent TargetType = "STUDENT"
	TargetTypeClass   TargetType = "CLASS"
	TargetTypeGroup   TargetType = "GROUP"
)

// AssignmentStatus enumerates assignment states.
type AssignmentStatus string

const (
	AssignmentStatusActive AssignmentStatus = "ACTIVE"
	AssignmentStatusClosed AssignmentStatus = "CLOSED"
)

// Assignment binds a simulation to a student, a class or a group.
type Assignment struct {
	ID              uuid.UUID        `json:"id"`
	SimulationID    uuid.UUID        `json:"simulation_id"`
	SimulationTitle string           `json:"simulation_title,omitempty"`
	TargetType      TargetType       `json:"target_type"`
	StudentID       *uuid.UUID       `json:"student_id,omitempty"`
	ClassID         *uuid.UUID       `json:"class_id,omitempty"`
	GroupID         *uuid.UUID       `json:"group_id,omitempty"`
	StartDate       *time.Time       `json:"start_date,omitempty"`
	EndDate         *time.Time       `json:"end_date,omitempty"`
	Status          AssignmentStatus `json:"status"`
	AssignedBy      uuid.UUID        `json:"assigned_by"`
	ClosedAt        *time.Time       `json:"closed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// TargetID returns the id of whatever the assignment targets.
func (a *Assignment) TargetID() uuid.UUID {
	switch a.TargetType {
	case TargetTypeStudent:
		if a.StudentID != nil {
			return *a.StudentID
		}
	case TargetTypeClass:
		if a.ClassID != nil {
			return *a.ClassID
		}
	case TargetTypeGroup:
		if a.GroupID != nil {
			return *a.GroupID
		}
	}
	return uuid.Nil
}

// CreateAssignmentRequest is the payload for assigning a simulation.
type CreateAssignmentRequest struct {
	TargetType TargetType `json:"target_type" binding:"required,oneof=STUDENT CLASS GROUP"`
	TargetID   uuid.UUID  `json:"target_id" binding:"required"`
	StartDate  *time.Time `json:"start_date" binding:"omitempty"`
	EndDate    *time.Time `json:"end_date" binding:"omitempty,gtfield=StartDate"`
}
