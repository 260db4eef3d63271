package settings

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve/sms-engine/internal/model"
)

type settingsRepo struct {
	mu       sync.Mutex
	byTenant map[uuid.UUID]*model.TriggerSettings
	reads    int
}

func newSettingsRepo() *settingsRepo {
	return &settingsRepo{byTenant: make(map[uuid.UUID]*model.TriggerSettings)}
}

func (r *settingsRepo) Get(_ context.Context, tenantID uuid.UUID) (*model.TriggerSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if s, ok := r.byTenant[tenantID]; ok {
		copied := *s
		return &copied, nil
	}
	// The SQL implementation falls back to defaults for unseen tenants.
	return model.DefaultTriggerSettings(tenantID), nil
}

func (r *settingsRepo) Upsert(_ context.Context, s *model.TriggerSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *s
	r.byTenant[s.TenantID] = &stored
	return nil
}

func (r *settingsRepo) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func TestSnapshotCachesWithinTTL(t *testing.T) {
	repo := newSettingsRepo()
	svc := NewService(repo, time.Minute)
	tenantID := uuid.New()

	first, err := svc.Snapshot(context.Background(), tenantID)
	require.NoError(t, err)
	second, err := svc.Snapshot(context.Background(), tenantID)
	require.NoError(t, err)

	assert.Same(t, first, second, "second snapshot served from cache")
	assert.Equal(t, 1, repo.readCount())
}

func TestSnapshotExpires(t *testing.T) {
	repo := newSettingsRepo()
	svc := NewService(repo, 10*time.Millisecond)
	tenantID := uuid.New()

	_, err := svc.Snapshot(context.Background(), tenantID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := svc.Snapshot(context.Background(), tenantID)
		require.NoError(t, err)
		return repo.readCount() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestUpdateInvalidatesSnapshot(t *testing.T) {
	repo := newSettingsRepo()
	svc := NewService(repo, time.Minute)
	tenantID := uuid.New()

	snapshot, err := svc.Snapshot(context.Background(), tenantID)
	require.NoError(t, err)
	require.True(t, snapshot.AutoArrived)

	updated := model.DefaultTriggerSettings(tenantID)
	updated.AutoArrived = false
	require.NoError(t, svc.Update(context.Background(), updated))

	snapshot, err = svc.Snapshot(context.Background(), tenantID)
	require.NoError(t, err)
	assert.False(t, snapshot.AutoArrived, "update takes effect on the next snapshot, not the next TTL")
}

func TestUpdateRejectsOutOfRangeLead(t *testing.T) {
	svc := NewService(newSettingsRepo(), time.Minute)

	bad := model.DefaultTriggerSettings(uuid.New())
	bad.ReminderLeadHours = 96
	assert.ErrorIs(t, svc.Update(context.Background(), bad), model.ErrReminderLeadOutOfRange)
}

func TestGetBypassesCache(t *testing.T) {
	repo := newSettingsRepo()
	svc := NewService(repo, time.Minute)
	tenantID := uuid.New()

	_, err := svc.Snapshot(context.Background(), tenantID)
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), tenantID)
	require.NoError(t, err)

	assert.Equal(t, 2, repo.readCount())
}
