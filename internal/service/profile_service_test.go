package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

type fakeUserReader struct {
	users map[uuid.UUID]model.User
	calls int
}

func (f *fakeUserReader) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.calls++
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func TestProfileMe(t *testing.T) {
	id := uuid.New()
	users := &fakeUserReader{users: map[uuid.UUID]model.User{id: {ID: id, Name: "Anna", Active: true}}}
	_, rdb := newTestRedis(t)
	svc := NewProfileService(users, rdb, time.Minute, testLog)

	u, err := svc.Me(context.Background(), &model.Principal{UserID: id, Role: model.RoleStudent})
	if err != nil || u.Name != "Anna" {
		t.Fatalf("Me = %+v, %v", u, err)
	}
	if _, err := svc.Me(context.Background(), &model.Principal{UserID: uuid.New()}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Me(context.Background(), nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("nil principal: err = %v", err)
	}
}

func TestProfileIsActiveCaches(t *testing.T) {
	active, inactive := uuid.New(), uuid.New()
	users := &fakeUserReader{users: map[uuid.UUID]model.User{
		active:   {ID: active, Active: true},
		inactive: {ID: inactive, Active: false},
	}}
	mr, rdb := newTestRedis(t)
	svc := NewProfileService(users, rdb, time.Minute, testLog)
	ctx := context.Background()

	tests := []struct {
		name string
		id   uuid.UUID
		want bool
	}{
		{"active", active, true},
		{"inactive", inactive, false},
		{"unknown", uuid.New(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 2; i++ {
				got, err := svc.IsActive(ctx, tt.id)
				if err != nil {
					t.Fatalf("IsActive: %v", err)
				}
				if got != tt.want {
					t.Fatalf("IsActive = %v, want %v", got, tt.want)
				}
			}
		})
	}
	if users.calls != 3 {
		t.Fatalf("database calls = %d, want 3 (second lookups cached)", users.calls)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := svc.IsActive(ctx, active); err != nil {
		t.Fatal(err)
	}
	if users.calls != 4 {
		t.Fatalf("database calls after expiry = %d, want 4", users.calls)
	}
}
