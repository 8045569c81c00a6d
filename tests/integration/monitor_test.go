//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/steam-monitor/internal/testutil"
	"github.com/Sternrassler/steam-monitor/pkg/notify"
	"github.com/Sternrassler/steam-monitor/pkg/ratelimit"
	"github.com/Sternrassler/steam-monitor/pkg/refresh"
	"github.com/Sternrassler/steam-monitor/pkg/steamapi"
	"github.com/Sternrassler/steam-monitor/pkg/store"
	"github.com/Sternrassler/steam-monitor/pkg/tracker"
	"github.com/Sternrassler/steam-monitor/pkg/transport"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// monitor is one wired monitor process sharing Redis with others.
type monitor struct {
	set          *tracker.Set
	orchestrator *refresh.Orchestrator
	dispatcher   *notify.Dispatcher
	notifier     *testutil.RecordingNotifier
}

func newMonitor(t *testing.T, redisClient *redis.Client, mock *testutil.MockRelay, cooldowns bool) *monitor {
	t.Helper()

	cfg := transport.DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.BreakerFailures = 0

	resolver, err := transport.New(mock.Adapters("primary", "backup"), cfg)
	if err != nil {
		t.Fatalf("transport.New() error = %v", err)
	}
	if cooldowns {
		resolver.SetCooldownTracker(ratelimit.NewTracker(redisClient, zerolog.Nop()))
	}

	steam := steamapi.New(resolver, steamapi.Config{
		StoreBaseURL: testutil.MockStoreBaseURL,
		APIBaseURL:   testutil.MockAPIBaseURL,
		Language:     "english",
	})

	set := tracker.NewSet(store.NewRedis(redisClient))
	if err := set.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	notifier := &testutil.RecordingNotifier{}
	dispatcher := notify.NewDispatcher(notifier, notify.NewRedisDeduper(redisClient, 0), time.Second)

	rc := refresh.DefaultConfig()
	rc.Schedule.Pause = 10 * time.Millisecond
	rc.ImportSchedule = refresh.Schedule{
		Rounds: []refresh.RoundPlan{{Concurrency: 5}, {Concurrency: 2}},
		Pause:  10 * time.Millisecond,
	}
	rc.MaxRounds = 5

	return &monitor{
		set:          set,
		orchestrator: refresh.New(set, tracker.NewTask(steam), dispatcher, rc),
		dispatcher:   dispatcher,
		notifier:     notifier,
	}
}

func newMock(t *testing.T) *testutil.MockRelay {
	t.Helper()
	mock := testutil.NewMockRelay()
	t.Cleanup(mock.Close)

	mock.SetApp(testutil.MockApp{ID: "570", Name: "Dota 2", ImageURL: "https://cdn.example/570.jpg", NewsDate: 1700000000, Players: 600000})
	mock.SetApp(testutil.MockApp{ID: "730", Name: "Counter-Strike 2", NewsDate: 1700000100, Players: 900000})
	mock.SetApp(testutil.MockApp{ID: "440", Name: "Team Fortress 2", NewsDate: 1700000200, Players: 50000})
	return mock
}

// TestImportRetriesTransientFailures tests that an app whose lookup fails on
// every relay in the first round is added in a later round.
func TestImportRetriesTransientFailures(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := newMock(t)
	m := newMonitor(t, redisClient, mock, false)
	ctx := context.Background()

	// Activity, live count and details each try both relays once.
	mock.FailApp("730", 6)

	res, err := m.orchestrator.Import(ctx, []string{"570", "730", "440", "999", "570"})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if res.Added != 3 {
		t.Errorf("Added = %d, want 3", res.Added)
	}
	if _, ok := res.Errors["999"]; !ok || len(res.Errors) != 1 {
		t.Errorf("Errors = %v, want only 999", res.Errors)
	}
	if len(res.Pending) != 0 {
		t.Errorf("Pending = %v, want none", res.Pending)
	}

	// Persisted to Redis: a second process sees the same set.
	other := newMonitor(t, redisClient, mock, false)
	for _, id := range []string{"570", "730", "440"} {
		if !other.set.Contains(id) {
			t.Errorf("App %s not persisted", id)
		}
	}
	if e, _ := other.set.Get("730"); e.Name != "Counter-Strike 2" || e.LiveCount != 900000 {
		t.Errorf("Persisted 730 = %+v", e)
	}
}

// TestRefreshSkipsCoolingRelay tests that a relay answering 429 is skipped
// by later requests while its cooldown lasts.
func TestRefreshSkipsCoolingRelay(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := newMock(t)
	m := newMonitor(t, redisClient, mock, true)
	ctx := context.Background()

	for _, id := range []string{"570", "730"} {
		if _, err := m.orchestrator.Add(ctx, id); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	mock.SetRelayDown("primary", testutil.NewRateLimitResponse(60))
	mock.SetNewsDate("570", 1700050000)

	res, err := m.orchestrator.RefreshAll(ctx, refresh.ModeRefresh)
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if len(res.Updated) != 1 || res.Updated[0].ID != "570" {
		t.Errorf("Updated = %+v, want [570]", res.Updated)
	}

	cooling, err := ratelimit.NewTracker(redisClient, zerolog.Nop()).CoolingDown(ctx, "primary")
	if err != nil {
		t.Fatalf("CoolingDown() error = %v", err)
	}
	if !cooling {
		t.Fatal("Primary relay should be cooling down")
	}

	before := mock.GetRelayRequests("primary")
	if _, err := m.orchestrator.RefreshAll(ctx, refresh.ModeRefresh); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if after := mock.GetRelayRequests("primary"); after != before {
		t.Errorf("Primary relay hit %d more times while cooling down", after-before)
	}

	m.dispatcher.Wait()
	sent := m.notifier.Sent()
	if len(sent) != 1 || sent[0].Tag != "game-update-summary-1700050000" {
		t.Errorf("Notifications = %+v, want one summary", sent)
	}
}

// TestNotificationDedupeAcrossProcesses tests that a tag sent by one process
// is not sent again by another sharing the same Redis.
func TestNotificationDedupeAcrossProcesses(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := newMock(t)
	ctx := context.Background()

	first := newMonitor(t, redisClient, mock, false)
	if _, err := first.orchestrator.Add(ctx, "440"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	mock.SetNewsDate("440", 1700090000)

	if _, err := first.orchestrator.RefreshOne(ctx, "440"); err != nil {
		t.Fatalf("RefreshOne() error = %v", err)
	}
	first.dispatcher.Wait()
	if sent := first.notifier.Sent(); len(sent) != 1 || sent[0].Tag != "game-update-440-1700090000" {
		t.Fatalf("First process notifications = %+v", sent)
	}

	// Second process loads the set, rewinds the stored timestamp and sees
	// the same news as new again.
	second := newMonitor(t, redisClient, mock, false)
	e, ok := second.set.Get("440")
	if !ok {
		t.Fatal("App 440 not loaded by second process")
	}
	e.LastActivityAt = 1700000000
	if _, err := second.set.Update(ctx, e); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	res, err := second.orchestrator.RefreshOne(ctx, "440")
	if err != nil {
		t.Fatalf("RefreshOne() error = %v", err)
	}
	if len(res.Updated) != 1 {
		t.Fatalf("Updated = %+v, want 440", res.Updated)
	}

	second.dispatcher.Wait()
	if sent := second.notifier.Sent(); len(sent) != 0 {
		t.Errorf("Second process sent %+v, want nothing", sent)
	}
}
