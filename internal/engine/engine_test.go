package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeeper/watchkeeper/internal/config"
	"github.com/watchkeeper/watchkeeper/internal/domain"
	"github.com/watchkeeper/watchkeeper/internal/store"
)

func testFleet(t *testing.T, url string) *config.Fleet {
	t.Helper()
	spec := &config.FleetSpec{
		Limits: config.Limits{
			CronSchedule:         "0 0 0 1 1 *", // once a year: never fires during the test
			DefaultTimeoutSeconds: 5,
			ShutdownDeadlineSec:  1,
		},
		Endpoints: []config.EndpointSpec{
			{Name: "api", URL: url, Method: http.MethodGet, TimeoutSec: 5, AcceptedCodes: []int{200}},
		},
	}
	fleet, report := config.Validate(spec, 0)
	require.True(t, report.OK(), "fleet validation errors: %v", report.Errors)
	return fleet
}

// TestEngineTriggerAllProducesHealthyResultEndToEnd exercises E1 from the
// spec's seed scenarios: one healthy endpoint, one manual trigger, one
// Healthy Result persisted via the SQLite repository and delivered to a
// subscriber.
func TestEngineTriggerAllProducesHealthyResultEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	repo, err := store.NewSQLiteRepository(ctx, "file::memory:?cache=shared")
	require.NoError(t, err)
	defer repo.Close(ctx)

	fleet := testFleet(t, srv.URL)
	eng, err := New("worker-test", "host-a", "1.0.0", "test", fleet, repo, t.TempDir()+"/spill.jsonl")
	require.NoError(t, err)

	subID, events, unsubscribe := eng.Subscribe("tester", nil,
		[]domain.Permission{domain.PermissionViewMonitoring},
		[]domain.Group{domain.GroupHTTP}, 4)
	defer unsubscribe()
	require.NotEmpty(t, subID)

	require.NoError(t, eng.Start(ctx))

	require.NoError(t, eng.TriggerAll(ctx))

	select {
	case result := <-events:
		assert.Equal(t, "api", result.TargetName)
		assert.Equal(t, domain.ResultStatusHealthy, result.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive a published result within 2s")
	}

	require.Eventually(t, func() bool {
		results, err := eng.ListResults(ctx, store.ResultFilter{Target: "api"})
		return err == nil && len(results) == 1
	}, 2*time.Second, 20*time.Millisecond, "result was not persisted via the store writer")

	require.NoError(t, eng.Stop(ctx))
}

// TestEngineTriggerTargetRejectsUnknownTarget exercises the §6 TriggerTarget
// error path for a name absent from the fleet.
func TestEngineTriggerTargetRejectsUnknownTarget(t *testing.T) {
	ctx := context.Background()
	repo, err := store.NewSQLiteRepository(ctx, "file::memory:?cache=shared")
	require.NoError(t, err)
	defer repo.Close(ctx)

	fleet := testFleet(t, "http://127.0.0.1:1")
	eng, err := New("worker-test", "host-a", "1.0.0", "test", fleet, repo, t.TempDir()+"/spill.jsonl")
	require.NoError(t, err)
	require.NoError(t, eng.Start(ctx))
	defer eng.Stop(ctx)

	err = eng.TriggerTarget(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownTarget)
}
