package worker

import (
	"context"
	"fmt"
	"time"

	"PostcardAgent/internal/flow"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const throttleKey = "consumer"

// Throttle 限制消费速率，速率格式同 limiter，例如 "30-M"
type Throttle struct {
	lim   *limiter.Limiter
	sleep flow.SleepFunc
	now   func() time.Time
}

// NewThrottle rate 为空时返回 nil，表示不限速
func NewThrottle(rate string, store limiter.Store) (*Throttle, error) {
	if rate == "" {
		return nil, nil
	}
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse consume rate %q: %w", rate, err)
	}
	if store == nil {
		store = memory.NewStore()
	}
	return &Throttle{lim: limiter.New(store, r), sleep: flow.ContextSleep, now: time.Now}, nil
}

// Wait 阻塞到下一次允许消费
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	for {
		lc, err := t.lim.Get(ctx, throttleKey)
		if err != nil {
			return err
		}
		if !lc.Reached {
			return nil
		}
		wait := time.Unix(lc.Reset, 0).Sub(t.now())
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
