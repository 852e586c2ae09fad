package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType tags in-app notification records.
type NotificationType string

const (
	NotificationSimulationAssigned NotificationType = "SIMULATION_ASSIGNED"
	NotificationReviewPending      NotificationType = "REVIEW_PENDING"
	NotificationResultReviewed     NotificationType = "RESULT_REVIEWED"
	NotificationContractExpired    NotificationType = "CONTRACT_EXPIRED"
	NotificationMessage            NotificationType = "MESSAGE"
)

// Notification is an in-app notification record.
type Notification struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// PushProvider names the delivery service of a device token.
type PushProvider string

const (
	PushProviderFCM  PushProvider = "FCM"
	PushProviderExpo PushProvider = "EXPO"
)

// DeviceToken is a push registration of one device.
type DeviceToken struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	Token     string       `json:"token"`
	Provider  PushProvider `json:"provider"`
	Active    bool         `json:"active"`
	LastError *string      `json:"last_error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RegisterDeviceRequest is the payload for registering a push token.
type RegisterDeviceRequest struct {
	Token    string       `json:"token" binding:"required,max=512"`
	Provider PushProvider `json:"provider" binding:"required,oneof=FCM EXPO"`
}

// Message is a chat line posted during a simulation.
type Message struct {
	ID           uuid.UUID `json:"id"`
	SimulationID uuid.UUID `json:"simulation_id"`
	SenderID     uuid.UUID `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// PostMessageRequest is the payload for posting a message.
type PostMessageRequest struct {
	Body string `json:"body" binding:"required,min=1,max=2000"`
}
