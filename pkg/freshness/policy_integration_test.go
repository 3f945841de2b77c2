//go:build integration

package freshness

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a Redis container and returns a client
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
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

func TestPolicy_Integration_RefreshLifecycle(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()

	policy := NewPolicy(client, time.Hour, zerolog.Nop())
	ctx := context.Background()
	key := Key{StateCode: "SP", Keyword: "merenda"}

	// Unknown key requires a refresh.
	needs, err := policy.NeedsRefresh(ctx, key)
	if err != nil {
		t.Fatalf("NeedsRefresh() error = %v", err)
	}
	if !needs {
		t.Error("NeedsRefresh() = false for an absent key, want true")
	}

	// After recording a cycle the key is fresh.
	if err := policy.MarkRefreshed(ctx, key, 17); err != nil {
		t.Fatalf("MarkRefreshed() error = %v", err)
	}
	needs, err = policy.NeedsRefresh(ctx, key)
	if err != nil {
		t.Fatalf("NeedsRefresh() error = %v", err)
	}
	if needs {
		t.Error("NeedsRefresh() = true right after MarkRefreshed, want false")
	}

	// A differently scoped query keeps its own bookkeeping.
	other := Key{StateCode: "RJ"}
	needs, err = policy.NeedsRefresh(ctx, other)
	if err != nil {
		t.Fatalf("NeedsRefresh() error = %v", err)
	}
	if !needs {
		t.Error("NeedsRefresh() = false for an unrelated key, want true")
	}
}

func TestPolicy_Integration_WindowExpiry(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()

	// A one-second window so the Redis TTL itself expires the record.
	policy := NewPolicy(client, time.Second, zerolog.Nop())
	ctx := context.Background()
	key := Key{MunicipalityCode: "3550308"}

	if err := policy.MarkRefreshed(ctx, key, 1); err != nil {
		t.Fatalf("MarkRefreshed() error = %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	needs, err := policy.NeedsRefresh(ctx, key)
	if err != nil {
		t.Fatalf("NeedsRefresh() error = %v", err)
	}
	if !needs {
		t.Error("NeedsRefresh() = false after the window elapsed, want true")
	}
}
