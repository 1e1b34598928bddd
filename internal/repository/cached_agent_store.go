package repository

import (
	"context"
	"errors"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	"FinAgent/pkg/cache"
	applogger "FinAgent/pkg/logger"
)

const agentKeyPrefix = "agent"

// CachedAgentStore reads agents through a cache and invalidates on Save.
// Cache failures are logged and fall through to the backing store.
type CachedAgentStore struct {
	next  domrepo.AgentStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedAgentStore(next domrepo.AgentStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedAgentStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedAgentStore{next: next, cache: c, ttl: ttl, l: l}
}

func (s *CachedAgentStore) ArtifactDir(id string) string { return s.next.ArtifactDir(id) }

func (s *CachedAgentStore) Save(ctx context.Context, a *models.Agent) error {
	if err := s.next.Save(ctx, a); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, cache.GenerateKey(agentKeyPrefix, a.AgentID), a, s.ttl); err != nil {
		s.l.Warn("agent cache set failed", applogger.String("agent_id", a.AgentID), applogger.Error(err))
		// A stale entry must not outlive the write.
		_ = s.cache.Delete(ctx, cache.GenerateKey(agentKeyPrefix, a.AgentID))
	}
	return nil
}

func (s *CachedAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	key := cache.GenerateKey(agentKeyPrefix, id)
	var a models.Agent
	err := s.cache.Get(ctx, key, &a)
	if err == nil {
		return &a, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("agent cache get failed", applogger.String("agent_id", id), applogger.Error(err))
	}

	got, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, got, s.ttl); err != nil {
		s.l.Warn("agent cache fill failed", applogger.String("agent_id", id), applogger.Error(err))
	}
	return got, nil
}

// List always reads the backing store; only single records are cached.
func (s *CachedAgentStore) List(ctx context.Context) ([]*models.Agent, error) {
	return s.next.List(ctx)
}

// TrainLock takes a short lived lock so one agent is never trained twice at once.
func (s *CachedAgentStore) TrainLock(ctx context.Context, id string, ttl time.Duration) (func(), bool, error) {
	key := cache.GenerateKey("lock", "train", id)
	ok, err := s.cache.TryLock(ctx, key, ttl)
	if err != nil || !ok {
		return func() {}, ok, err
	}
	return func() {
		if err := s.cache.Unlock(context.Background(), key); err != nil {
			s.l.Warn("release train lock", applogger.String("agent_id", id), applogger.Error(err))
		}
	}, true, nil
}

var _ domrepo.AgentStore = (*CachedAgentStore)(nil)
