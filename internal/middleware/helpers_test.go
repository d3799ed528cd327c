package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"publier/backend/internal/auth"
	"publier/backend/internal/domain"
	"publier/backend/internal/monitoring"
	"publier/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// inlineTasks 同步执行后台任务
type inlineTasks struct{}

func (inlineTasks) TrySubmit(_ string, task func(ctx context.Context) error) bool {
	_ = task(context.Background())
	return true
}

type fixture struct {
	store   *memory.Store
	metrics *monitoring.Metrics
	authn   *Authenticator
}

func newFixture(t *testing.T, allowTestKeys bool) *fixture {
	t.Helper()
	store := memory.NewStore()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	creds := auth.NewCredentialStore(store, store, inlineTasks{}, zap.NewNop(), metrics)
	return &fixture{
		store:   store,
		metrics: metrics,
		authn:   NewAuthenticator(creds, allowTestKeys, zap.NewNop(), metrics),
	}
}

func (f *fixture) issueKey(t *testing.T, id string, env domain.Environment, expiresAt *time.Time, scopes ...domain.Scope) string {
	t.Helper()
	issued, err := auth.GenerateAPIKey(env)
	require.NoError(t, err)
	require.NoError(t, f.store.CreateAPIKey(context.Background(), &domain.APIKey{
		ID:          id,
		AppID:       "app-1",
		Name:        id,
		KeyHash:     issued.Hash,
		KeyPrefix:   issued.Prefix,
		Environment: env,
		Scopes:      scopes,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}))
	return issued.Raw
}

func (f *fixture) issueSession(t *testing.T, id string, expiresAt time.Time) string {
	t.Helper()
	raw, hash, err := auth.GenerateSessionToken()
	require.NoError(t, err)
	require.NoError(t, f.store.CreateSession(context.Background(), &domain.Session{
		ID:        id,
		UserID:    "user-1",
		TokenHash: hash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}))
	return raw
}

// newEngine 构建带请求 ID 与错误边界的测试路由
func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler(zap.NewNop()))
	return r
}

func principalHandler(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusOK, gin.H{"principal": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": p.Key()})
}

func doRequest(r http.Handler, method, path, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}
