package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// MessageStore persists in-session messages.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	ListAfter(ctx context.Context, simulationID uuid.UUID, after time.Time, limit int) ([]model.Message, error)
}

// MessageService handles the message board of a running simulation. Clients
// poll it with the timestamp of the last message they saw.
type MessageService struct {
	access *AccessService
	store  MessageStore
	limit  int
	log    zerolog.Logger
}

// NewMessageService creates a new MessageService.
func NewMessageService(access *AccessService, store MessageStore, limit int, log zerolog.Logger) *MessageService {
	if limit <= 0 {
		limit = 100
	}
	return &MessageService{
		access: access,
		store:  store,
		limit:  limit,
		log:    log.With().Str("component", "message_service").Logger(),
	}
}

// Post adds a message to the board of a simulation.
func (s *MessageService) Post(ctx context.Context, p *model.Principal, simulationID uuid.UUID, req *model.PostMessageRequest) (*model.Message, error) {
	if _, err := s.access.ResolveAccess(ctx, p, simulationID); err != nil {
		return nil, err
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, fmt.Errorf("%w: empty message", ErrValidation)
	}

	m := &model.Message{
		SimulationID: simulationID,
		SenderID:     p.UserID,
		SenderName:   p.Name,
		Body:         body,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	s.log.Debug().
		Str("simulation_id", simulationID.String()).
		Str("sender_id", p.UserID.String()).
		Msg("Message posted")
	return m, nil
}

// List returns the messages posted after the cursor, oldest first. A nil
// cursor lists from the beginning.
func (s *MessageService) List(ctx context.Context, p *model.Principal, simulationID uuid.UUID, after *time.Time) ([]model.Message, error) {
	if _, err := s.access.ResolveAccess(ctx, p, simulationID); err != nil {
		return nil, err
	}
	var cursor time.Time
	if after != nil {
		cursor = *after
	}
	msgs, err := s.store.ListAfter(ctx, simulationID, cursor, s.limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}
