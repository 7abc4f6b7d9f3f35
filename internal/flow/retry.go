package flow

import (
	"context"
	"time"
)

// RetryPolicy 控制 Exec 的尝试次数和两次尝试间的等待
type RetryPolicy interface {
	MaxAttempts() int
	// Wait 在第 attempt 次失败后阻塞，ctx 结束时返回其错误
	Wait(ctx context.Context, attempt int) error
}

// SleepFunc 可替换的等待实现
type SleepFunc func(ctx context.Context, d time.Duration) error

// FixedBackoff 固定间隔重试
type FixedBackoff struct {
	Attempts int
	Delay    time.Duration
	Sleep    SleepFunc
}

// Fixed attempts<1 时按 1 处理
func Fixed(attempts int, delay time.Duration) FixedBackoff {
	return FixedBackoff{Attempts: attempts, Delay: delay}
}

func (b FixedBackoff) MaxAttempts() int {
	if b.Attempts < 1 {
		return 1
	}
	return b.Attempts
}

func (b FixedBackoff) Wait(ctx context.Context, attempt int) error {
	if b.Delay <= 0 {
		return ctx.Err()
	}
	sleep := b.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}
	return sleep(ctx, b.Delay)
}

// Scaled 按比例缩放等待时间
func (b FixedBackoff) Scaled(factor float64) FixedBackoff {
	if factor < 0 {
		factor = 0
	}
	b.Delay = time.Duration(float64(b.Delay) * factor)
	return b
}

// ContextSleep 阻塞 d，ctx 结束时提前返回
func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
