//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_StrikesEscalate(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger).WithConfig(Config{
		DefaultCooldown: 10 * time.Second,
		MaxCooldown:     25 * time.Second,
	})
	ctx := context.Background()

	expected := []time.Duration{10 * time.Second, 20 * time.Second, 25 * time.Second}
	for i, want := range expected {
		if err := tracker.RecordRateLimited(ctx, "codetabs", http.Header{}); err != nil {
			t.Fatalf("RecordRateLimited() #%d error = %v", i+1, err)
		}

		ttl, err := redisClient.TTL(ctx, cooldownKey("codetabs")).Result()
		if err != nil {
			t.Fatalf("TTL() error = %v", err)
		}
		if ttl <= want-2*time.Second || ttl > want {
			t.Errorf("strike %d: cooldown TTL = %v, want ~%v", i+1, ttl, want)
		}
	}

	state, err := tracker.GetState(ctx, "codetabs")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Strikes != 3 {
		t.Errorf("Strikes = %d, want 3", state.Strikes)
	}
	if state.IsStale(time.Now(), time.Minute) {
		t.Error("State should not be stale right after a strike")
	}
}

func TestTracker_Integration_RetryAfter(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.Nop())
	ctx := context.Background()

	headers := http.Header{}
	headers.Set("Retry-After", "2")
	if err := tracker.RecordRateLimited(ctx, "corsproxy", headers); err != nil {
		t.Fatalf("RecordRateLimited() error = %v", err)
	}

	cooling, err := tracker.CoolingDown(ctx, "corsproxy")
	if err != nil {
		t.Fatalf("CoolingDown() error = %v", err)
	}
	if !cooling {
		t.Fatal("Relay should be cooling down")
	}

	time.Sleep(2500 * time.Millisecond)

	cooling, err = tracker.CoolingDown(ctx, "corsproxy")
	if err != nil {
		t.Fatalf("CoolingDown() error = %v", err)
	}
	if cooling {
		t.Error("Cooldown should have expired after Retry-After")
	}
}

func TestTracker_Integration_SharedAcrossInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	first := NewTracker(redisClient, zerolog.Nop())
	second := NewTracker(redisClient, zerolog.Nop())

	if err := first.RecordRateLimited(ctx, "cors-anywhere", http.Header{}); err != nil {
		t.Fatalf("RecordRateLimited() error = %v", err)
	}

	cooling, err := second.CoolingDown(ctx, "cors-anywhere")
	if err != nil {
		t.Fatalf("CoolingDown() error = %v", err)
	}
	if !cooling {
		t.Error("Cooldown recorded by one tracker should be visible to another")
	}
}
