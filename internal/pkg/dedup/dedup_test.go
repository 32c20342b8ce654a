package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDeduplicator_IsDuplicate(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})

	d := NewDeduplicator(rdb, time.Minute)
	ctx := context.Background()

	dup, err := d.IsDuplicate(ctx, "evt_3MqALI2eZvKYlo2C")
	if err != nil {
		t.Fatalf("first dedup: %v", err)
	}
	if dup {
		t.Fatalf("expected first event to be non-duplicate")
	}

	dup, err = d.IsDuplicate(ctx, "evt_3MqALI2eZvKYlo2C")
	if err != nil {
		t.Fatalf("second dedup: %v", err)
	}
	if !dup {
		t.Fatalf("expected replayed event to be duplicate")
	}
}

func TestDeduplicator_DeleteAllowsRetry(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})

	d := NewDeduplicator(rdb, time.Minute)
	ctx := context.Background()

	if _, err := d.IsDuplicate(ctx, "evt_retry"); err != nil {
		t.Fatalf("claim event: %v", err)
	}
	if err := d.Delete(ctx, "evt_retry"); err != nil {
		t.Fatalf("release event: %v", err)
	}

	dup, err := d.IsDuplicate(ctx, "evt_retry")
	if err != nil {
		t.Fatalf("reclaim event: %v", err)
	}
	if dup {
		t.Fatalf("expected released event to be claimable again")
	}
}
