package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/push"
)

type fakeNotificationStore struct {
	created []uuid.UUID
	devices []model.DeviceToken
}

func (f *fakeNotificationStore) CreateMany(_ context.Context, userIDs []uuid.UUID, _ model.Notification) error {
	f.created = append(f.created, userIDs...)
	return nil
}

func (f *fakeNotificationStore) ListByUser(_ context.Context, _ uuid.UUID, limit, offset int) ([]model.Notification, int, error) {
	return []model.Notification{}, 45, nil
}

func (f *fakeNotificationStore) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (f *fakeNotificationStore) UpsertDevice(_ context.Context, d *model.DeviceToken) error {
	d.ID = uuid.New()
	d.Active = true
	f.devices = append(f.devices, *d)
	return nil
}

func (f *fakeNotificationStore) DeleteDevice(context.Context, uuid.UUID, string) error { return nil }

func TestNotifyStoresAndQueuesPush(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	store := &fakeNotificationStore{}
	svc := NewNotificationService(store, rdb, testLog)

	users := []uuid.UUID{uuid.New(), uuid.New()}
	err := svc.Notify(ctx, users, model.Notification{
		Type:  model.NotificationSimulationAssigned,
		Title: "Nuova simulazione",
		Body:  "Ti è stata assegnata una simulazione.",
		Data:  map[string]string{"simulation_id": "s1"},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(store.created) != 2 {
		t.Fatalf("expected 2 notification rows, got %d", len(store.created))
	}

	items, err := mr.List(config.WorkerKey.PushQueue)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one queued push job, got %v (%v)", items, err)
	}
	var job push.Job
	if err := json.Unmarshal([]byte(items[0]), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if len(job.UserIDs) != 2 || job.Message.Data["type"] != string(model.NotificationSimulationAssigned) ||
		job.Message.Data["simulation_id"] != "s1" {
		t.Fatalf("unexpected job: %+v", job)
	}

	if err := svc.Notify(ctx, nil, model.Notification{Type: model.NotificationMessage}); err != nil {
		t.Fatalf("notify nobody: %v", err)
	}
	if items, _ := mr.List(config.WorkerKey.PushQueue); len(items) != 1 {
		t.Fatalf("notifying nobody must not queue a job")
	}
}

func TestNotifySurvivesRedisOutage(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := &fakeNotificationStore{}
	svc := NewNotificationService(store, rdb, testLog)
	mr.Close()

	err := svc.Notify(context.Background(), []uuid.UUID{uuid.New()}, model.Notification{Type: model.NotificationMessage})
	if err != nil {
		t.Fatalf("push enqueue failures must not fail the caller: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("the in-app notification must still be stored")
	}
}

func TestRegisterDevice(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	svc := NewNotificationService(&fakeNotificationStore{}, rdb, testLog)
	p := student(uuid.New(), nil)

	tests := []struct {
		name    string
		req     model.RegisterDeviceRequest
		wantErr error
	}{
		{"expo token", model.RegisterDeviceRequest{Token: "ExponentPushToken[abc123]", Provider: model.PushProviderExpo}, nil},
		{"bad expo token", model.RegisterDeviceRequest{Token: "abc123", Provider: model.PushProviderExpo}, ErrValidation},
		{"fcm token", model.RegisterDeviceRequest{Token: "fcm-registration-token", Provider: model.PushProviderFCM}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := svc.RegisterDevice(ctx, p, &tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err == nil && (d.UserID != p.UserID || !d.Active) {
				t.Fatalf("unexpected device: %+v", d)
			}
		})
	}
}

func TestListMinePagination(t *testing.T) {
	_, rdb := newTestRedis(t)
	svc := NewNotificationService(&fakeNotificationStore{}, rdb, testLog)

	_, pg, err := svc.ListMine(context.Background(), student(uuid.New(), nil), 0, 500)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if pg.Page != 1 || pg.PerPage != 20 || pg.TotalItems != 45 || pg.TotalPages != 3 {
		t.Fatalf("unexpected pagination: %+v", pg)
	}
}
