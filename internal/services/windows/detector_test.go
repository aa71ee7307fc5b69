package windows

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "groupwarden/internal/repo/redis"
)

func TestRecordMessageBreachesOnLimit(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	detector := NewDetector(redrepo.NewWindowRepo(client), nil)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		breached, _, err := detector.RecordMessage(ctx, 100, 42, 1000+i, 5, 2*time.Second)
		if err != nil {
			t.Fatalf("record message #%d: %v", i, err)
		}
		if breached {
			t.Fatalf("unexpected breach on message #%d", i)
		}
	}

	breached, messageIDs, err := detector.RecordMessage(ctx, 100, 42, 1005, 5, 2*time.Second)
	if err != nil {
		t.Fatalf("record message #5: %v", err)
	}
	if !breached {
		t.Fatalf("expected breach on fifth message within window")
	}
	if len(messageIDs) != 5 {
		t.Fatalf("expected 5 window message ids, got %v", messageIDs)
	}
}

func TestRecordMessageClearsWindowAfterBreach(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	detector := NewDetector(redrepo.NewWindowRepo(client), nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, _, err := detector.RecordMessage(ctx, 100, 42, i, 3, 2*time.Second); err != nil {
			t.Fatalf("record message #%d: %v", i, err)
		}
	}

	breached, _, err := detector.RecordMessage(ctx, 100, 42, 4, 3, 2*time.Second)
	if err != nil {
		t.Fatalf("record message after breach: %v", err)
	}
	if breached {
		t.Fatalf("expected fresh window after breach, got immediate re-trigger")
	}
}

func TestRecordMessagePurgesExpiredEntries(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := redrepo.NewWindowRepo(client)
	detector := NewDetector(repo, nil)
	base := time.Now()
	detector.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if _, _, err := detector.RecordMessage(ctx, 100, 42, i, 5, 2*time.Second); err != nil {
			t.Fatalf("record message #%d: %v", i, err)
		}
	}

	// Everything above falls out of the trailing window before the fifth
	// message arrives.
	detector.now = func() time.Time { return base.Add(3 * time.Second) }

	breached, _, err := detector.RecordMessage(ctx, 100, 42, 5, 5, 2*time.Second)
	if err != nil {
		t.Fatalf("record message after gap: %v", err)
	}
	if breached {
		t.Fatalf("expected stale entries purged, got breach")
	}
}

func TestRecordMessageDisabledWhenLimitZero(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	detector := NewDetector(redrepo.NewWindowRepo(client), nil)
	ctx := context.Background()

	for i := 1; i <= 50; i++ {
		breached, _, err := detector.RecordMessage(ctx, 100, 42, i, 0, time.Second)
		if err != nil {
			t.Fatalf("record message #%d: %v", i, err)
		}
		if breached {
			t.Fatalf("expected no breach with limit 0")
		}
	}
}

func TestRecordJoinBreachesAtThreshold(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	detector := NewDetector(redrepo.NewWindowRepo(client), nil)
	ctx := context.Background()

	for i := 1; i <= 9; i++ {
		breached, err := detector.RecordJoin(ctx, 100, int64(i), 10)
		if err != nil {
			t.Fatalf("record join #%d: %v", i, err)
		}
		if breached {
			t.Fatalf("unexpected breach on join #%d", i)
		}
	}

	breached, err := detector.RecordJoin(ctx, 100, 10, 10)
	if err != nil {
		t.Fatalf("record join #10: %v", err)
	}
	if !breached {
		t.Fatalf("expected breach on tenth join within a minute")
	}

	// The join window is not cleared on breach, so the next join still
	// reports a breach.
	breached, err = detector.RecordJoin(ctx, 100, 11, 10)
	if err != nil {
		t.Fatalf("record join #11: %v", err)
	}
	if !breached {
		t.Fatalf("expected window to persist past the breach")
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}
