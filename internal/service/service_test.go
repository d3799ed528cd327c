package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage/memory"
)

// mockPublisher 模拟事件发布
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Dispatch(ownerID string, event domain.WebhookEventType, data interface{}) error {
	args := m.Called(ownerID, event, data)
	return args.Error(0)
}

// mockRedeliverer 模拟手动重投
type mockRedeliverer struct {
	mock.Mock
}

func (m *mockRedeliverer) Redeliver(hook *domain.Webhook, delivery *domain.WebhookDelivery) error {
	args := m.Called(hook, delivery)
	return args.Error(0)
}

// stepClock 每次调用前进一秒，保证创建时间严格递增
func stepClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func newTestApp(t *testing.T, store *memory.Store, userID string, env domain.Environment) *domain.App {
	t.Helper()
	app, err := NewAppService(store, zap.NewNop()).Create(context.Background(), CreateAppInput{
		UserID:      userID,
		Name:        "app-" + userID + "-" + string(env),
		Environment: env,
	})
	require.NoError(t, err)
	return app
}

func requireAPIError(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	apiErr := domain.AsAPIError(err)
	require.Equal(t, kind, apiErr.Kind, apiErr.Message)
}
