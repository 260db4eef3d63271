package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/repository"
)

// DefaultSnapshotTTL bounds settings staleness: a settings change
// applies to trigger evaluations started after at most this long.
const DefaultSnapshotTTL = 5 * time.Second

type Service interface {
	// Snapshot returns the tenant settings for one trigger evaluation.
	// The snapshot may be up to the cache TTL stale; callers must not
	// re-read mid-evaluation.
	Snapshot(ctx context.Context, tenantID uuid.UUID) (*model.TriggerSettings, error)
	Get(ctx context.Context, tenantID uuid.UUID) (*model.TriggerSettings, error)
	Update(ctx context.Context, settings *model.TriggerSettings) error
}

type service struct {
	repo  repository.SettingsRepository
	cache *gocache.Cache
}

func NewService(repo repository.SettingsRepository, ttl time.Duration) Service {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &service{
		repo:  repo,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (s *service) Snapshot(ctx context.Context, tenantID uuid.UUID) (*model.TriggerSettings, error) {
	key := tenantID.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.TriggerSettings), nil
	}

	settings, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings snapshot: %w", err)
	}

	s.cache.SetDefault(key, settings)
	return settings, nil
}

// Get always reads through to storage; the admin UI should not see
// its own write lag behind the cache.
func (s *service) Get(ctx context.Context, tenantID uuid.UUID) (*model.TriggerSettings, error) {
	return s.repo.Get(ctx, tenantID)
}

func (s *service) Update(ctx context.Context, settings *model.TriggerSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	if err := s.repo.Upsert(ctx, settings); err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}

	// Drop the stale snapshot so the new settings take effect within
	// one evaluation rather than one TTL.
	s.cache.Delete(settings.TenantID.String())
	return nil
}
