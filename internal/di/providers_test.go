package di

import (
	"testing"

	"FinAgent/internal/repository"
	"FinAgent/pkg/cache"
	"FinAgent/pkg/config"
	applogger "FinAgent/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvideCacheVariants(t *testing.T) {
	cfg := config.Default()

	c, cleanup := ProvideCache(cfg, nil)
	assert.Nil(t, c)
	cleanup()

	cfg.Cache.Enabled = true
	c, cleanup = ProvideCache(cfg, nil)
	assert.IsType(t, &cache.MemoryCache{}, c)
	cleanup()

	mr := miniredis.RunT(t)
	cfg.Cache.Redis.Enabled = true
	cfg.Cache.Redis.Addr = mr.Addr()
	rc, closeRedis, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	defer closeRedis()

	c, cleanup = ProvideCache(cfg, rc)
	assert.IsType(t, &cache.LayeredCache{}, c)
	cleanup()
	// the layered cache borrows the client
	require.NoError(t, rc.Client().Ping(t.Context()).Err())
}

func TestProvideAgentStoreWrapsWhenCached(t *testing.T) {
	cfg := config.Default()
	cfg.Models.Dir = t.TempDir()

	assert.IsType(t, &repository.FileAgentStore{}, ProvideAgentStore(cfg, nil, applogger.Nop()))
	mem := cache.NewMemoryCache()
	defer mem.Close()
	assert.IsType(t, &repository.CachedAgentStore{}, ProvideAgentStore(cfg, mem, applogger.Nop()))
}

func TestOptionalInfraDisabled(t *testing.T) {
	cfg := config.Default()

	ch, cleanup, err := ProvideClickHouseClient(cfg, applogger.Nop())
	require.NoError(t, err)
	assert.Nil(t, ch)
	cleanup()
	assert.Nil(t, ProvideBarStore(cfg, nil, applogger.Nop()))

	p, cleanup, err := ProvideKafkaProducer(cfg, nil, applogger.Nop())
	require.NoError(t, err)
	assert.Nil(t, p)
	cleanup()
	assert.IsType(t, &repository.LogDecisionPublisher{}, ProvideDecisionPublisher(cfg, nil, applogger.Nop()))

	assert.Nil(t, ProvideTrainPublisher(cfg, nil, applogger.Nop()))
	assert.Nil(t, ProvideTrainEnqueuer(nil))

	_, err = ProvideTrainWorker(cfg, nil, nil, applogger.Nop())
	assert.Error(t, err)

	consumer, err := ProvideBarsConsumer(cfg, nil, applogger.Nop())
	require.NoError(t, err)
	assert.Nil(t, consumer)
}

func TestProvideLiveAppNeedsAgentAndSymbols(t *testing.T) {
	cfg := config.Default()
	_, err := ProvideLiveApp(cfg, applogger.Nop(), nil, nil, nil, nil, nil)
	assert.ErrorContains(t, err, "agent_id")

	cfg.Live.AgentID = "a1"
	cfg.Live.Symbols = nil
	_, err = ProvideLiveApp(cfg, applogger.Nop(), nil, nil, nil, nil, nil)
	assert.ErrorContains(t, err, "symbols")
}
