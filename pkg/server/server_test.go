package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tokenizart/edition/pkg/authz"
	"github.com/tokenizart/edition/pkg/cache"
	"github.com/tokenizart/edition/pkg/edition"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type fixture struct {
	db  *gorm.DB
	reg *edition.Registry
	h   http.Handler
}

func newFixture(t *testing.T, cfg *Config, opts ...Option) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := edition.NewStore(db)
	require.NoError(t, store.AutoMigrate())
	promReg := prometheus.NewRegistry()
	reg, err := edition.Open(context.Background(), store, edition.VariantFull,
		edition.WithMetrics(edition.NewMetrics(promReg)))
	require.NoError(t, err)

	opts = append([]Option{
		WithAuthenticator(authz.HeaderAuthenticator{}),
		WithGatherer(promReg),
	}, opts...)
	srv := New(reg, db, cfg, opts...)
	return &fixture{db: db, reg: reg, h: srv.Routes()}
}

func (f *fixture) do(t *testing.T, method, path string, caller common.Address, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != (common.Address{}) {
		req.Header.Set(authz.HeaderRemoteUser, caller.Hex())
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	return w
}

const mintJSON = `{"recipient":"0x00000000000000000000000000000000000000b2","fields":{"offChainURI":"ipfs://QmA","onChainMetadata":"{}","onChainImage":"data:image/png;base64,AA=="}}`

func TestABIEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodGet, "/abi", common.Address{}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ABI []map[string]any `json:"abi"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	names := map[string]bool{}
	for _, e := range body.ABI {
		if n, ok := e["name"].(string); ok {
			names[n] = true
		}
	}
	assert.True(t, names["mint"])
	assert.True(t, names["tokenURI"])
	assert.True(t, names["updateOnChainImage"])
}

func TestConfigEndpoint(t *testing.T) {
	t.Run("falls back to registry address", func(t *testing.T) {
		f := newFixture(t, &Config{MetadataHash: "QmMeta"})
		w := f.do(t, http.MethodGet, "/config", common.Address{}, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"contractAddress":"","metadataURI":"QmMeta"}`, w.Body.String())

		addr, err := f.reg.Deploy(context.Background(), owner, "Girl42", "G42")
		require.NoError(t, err)
		w = f.do(t, http.MethodGet, "/config", common.Address{}, "")
		var cfg frontendConfig
		require.NoError(t, json.NewDecoder(w.Body).Decode(&cfg))
		assert.Equal(t, addr.Hex(), cfg.ContractAddress)
	})

	t.Run("env override wins", func(t *testing.T) {
		f := newFixture(t, &Config{ContractAddress: "0xdead", MetadataHash: "QmMeta"})
		w := f.do(t, http.MethodGet, "/config", common.Address{}, "")
		assert.JSONEq(t, `{"contractAddress":"0xdead","metadataURI":"QmMeta"}`, w.Body.String())
	})
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/healthz", common.Address{}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/readyz", common.Address{}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)

	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	w = f.do(t, http.MethodGet, "/readyz", common.Address{}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRegistryRoutesMounted(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, APIPrefix+"/contract", owner, `{"name":"Girl42","symbol":"G42"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, APIPrefix+"/mint", alice, mintJSON)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, APIPrefix+"/mint", owner, mintJSON)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/metrics", common.Address{}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "edition_operations_total")
}

func TestCacheInvalidatedByMutation(t *testing.T) {
	cm := cache.NewManager(&cache.Config{Enabled: true, TTL: time.Minute, MaxSize: 16}, nil)
	f := newFixture(t, nil, WithCache(cm))

	w := f.do(t, http.MethodGet, APIPrefix+"/exists", common.Address{}, "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	w = f.do(t, http.MethodGet, APIPrefix+"/exists", common.Address{}, "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"exists":false}`, w.Body.String())

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, APIPrefix+"/contract", owner, `{}`).Code)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, APIPrefix+"/mint", owner, mintJSON).Code)

	w = f.do(t, http.MethodGet, APIPrefix+"/exists", common.Address{}, "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"exists":true}`, w.Body.String())
}

func TestWriteRateLimit(t *testing.T) {
	f := newFixture(t, &Config{WriteInterval: time.Hour})

	w := f.do(t, http.MethodPost, APIPrefix+"/contract", owner, `{}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, APIPrefix+"/mint", owner, mintJSON)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w = f.do(t, http.MethodGet, APIPrefix+"/", owner, "")
	assert.Equal(t, http.StatusOK, w.Code, "reads are never limited")

	w = f.do(t, http.MethodPost, APIPrefix+"/mint", alice, mintJSON)
	assert.Equal(t, http.StatusForbidden, w.Code, "limit is per caller")
}

func TestWriteRateLimiterAllow(t *testing.T) {
	assert.Nil(t, NewWriteRateLimiter(0))

	now := time.Unix(1_700_000_000, 0)
	rl := NewWriteRateLimiter(10 * time.Second)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, wait := rl.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, wait)

	now = now.Add(11 * time.Second)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CONTRACT_ADDRESS", "0xabc")
	t.Setenv("IPFS_HASH_METADATA", "QmHash")
	t.Setenv("EDITION_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("EDITION_WRITE_INTERVAL", "3")

	cfg := ConfigFromEnv()
	assert.Equal(t, "0xabc", cfg.ContractAddress)
	assert.Equal(t, "QmHash", cfg.MetadataHash)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.WriteInterval)
}
