package windows

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultFloodWindow = 5 * time.Second
	raidJoinWindow     = time.Minute
	raidJoinBackstop   = 2 * time.Minute
)

type Store interface {
	RecordAndCount(ctx context.Context, key, member string, at time.Time, window, ttl time.Duration) (int64, error)
	Members(ctx context.Context, key string) ([]string, error)
	Clear(ctx context.Context, key string) error
}

// Detector evaluates event velocity per subject over a trailing window.
// Concurrent events for one subject may both observe a breached count before
// the flood set is cleared; the duplicate trigger is accepted.
type Detector struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

func NewDetector(store Store, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// RecordMessage feeds one message into the sender's flood window and reports
// whether the limit was reached. On a breach it returns the message ids
// still in the window and clears the set so the very next message does not
// immediately re-trigger.
func (d *Detector) RecordMessage(ctx context.Context, chatID, userID int64, messageID, limit int, window time.Duration) (bool, []int, error) {
	if limit <= 0 {
		return false, nil, nil
	}
	if window <= 0 {
		window = defaultFloodWindow
	}

	now := d.now()
	key := floodKey(chatID, userID)
	member := strconv.Itoa(messageID) + ":" + strconv.FormatInt(now.UnixNano(), 10)

	count, err := d.store.RecordAndCount(ctx, key, member, now, window, window+time.Second)
	if err != nil {
		return false, nil, fmt.Errorf("record flood event: %w", err)
	}
	if count < int64(limit) {
		return false, nil, nil
	}

	messageIDs := d.drainMessageIDs(ctx, key)
	d.logger.Info("flood detected",
		zap.Int64("chat_id", chatID),
		zap.Int64("user_id", userID),
		zap.Int64("count", count),
		zap.Int("limit", limit))

	return true, messageIDs, nil
}

// RecordJoin feeds one join into the chat's raid window. The window is fixed
// at one minute and is not cleared on a breach; re-activation while raid
// mode is already on is the caller's concern.
func (d *Detector) RecordJoin(ctx context.Context, chatID, userID int64, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	now := d.now()
	member := strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(now.UnixNano(), 10)

	count, err := d.store.RecordAndCount(ctx, raidKey(chatID), member, now, raidJoinWindow, raidJoinBackstop)
	if err != nil {
		return false, fmt.Errorf("record join event: %w", err)
	}
	if count >= int64(limit) {
		d.logger.Info("join surge detected", zap.Int64("chat_id", chatID), zap.Int64("count", count), zap.Int("limit", limit))
		return true, nil
	}

	return false, nil
}

func (d *Detector) drainMessageIDs(ctx context.Context, key string) []int {
	members, err := d.store.Members(ctx, key)
	if err != nil {
		d.logger.Warn("read flood window members", zap.Error(err))
	}
	if err := d.store.Clear(ctx, key); err != nil {
		d.logger.Warn("clear flood window", zap.Error(err))
	}

	ids := make([]int, 0, len(members))
	for _, m := range members {
		raw, _, ok := strings.Cut(m, ":")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(raw)
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, id)
	}

	return ids
}

func floodKey(chatID, userID int64) string {
	return "flood:" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}

func raidKey(chatID int64) string {
	return "raid_joins:" + strconv.FormatInt(chatID, 10)
}
