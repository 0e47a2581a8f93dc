package utils

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BatchMute caps the number of events let through per interval. Events past
// the cap are counted and reported when the next interval opens.
type BatchMute struct {
	lock          sync.Mutex
	batchTime     time.Time
	resetInterval time.Duration
	ctr           int
	max           int
}

// increment reports whether the event at t is muted and, on the first event
// of a new interval, how many were muted in the previous one.
func (b *BatchMute) increment(val int, t time.Time) (muted bool, skipped int) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.max == 0 || b.resetInterval == 0 {
		return false, 0
	}

	if t.Sub(b.batchTime) > b.resetInterval {
		if b.ctr > b.max {
			skipped = b.ctr - b.max
		}
		b.ctr = 0
		b.batchTime = t
	}
	b.ctr += val

	return b.ctr > b.max, skipped
}

func (b *BatchMute) Increment() (muted bool, skipped int) {
	return b.increment(1, time.Now().UTC())
}

// Log emits msg through logger unless the batch is muted. The first muted
// event logs a notice naming what is muted; the first event after a muted
// interval reports the count dropped.
func (b *BatchMute) Log(logger *slog.Logger, level slog.Level, what, msg string, attrs ...any) {
	b.log(logger, level, time.Now().UTC(), what, msg, attrs...)
}

func (b *BatchMute) log(logger *slog.Logger, level slog.Level, t time.Time, what, msg string, attrs ...any) {
	muted, skipped := b.increment(1, t)
	if skipped > 0 {
		logger.Warn(fmt.Sprintf("skipped %s", what), slog.Int("count", skipped))
	}
	if muted {
		if b.first() {
			logger.Warn(fmt.Sprintf("too many %s, muting", what))
		}
		return
	}
	logger.Log(context.Background(), level, msg, attrs...)
}

// first reports whether the current interval just went over the cap.
func (b *BatchMute) first() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.ctr == b.max+1
}

func NewBatchMute(resetInterval time.Duration, max int) *BatchMute {
	return &BatchMute{
		batchTime:     time.Now().UTC(),
		resetInterval: resetInterval,
		max:           max,
	}
}
