package scheduler

import (
	"context"
	"sync"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// ProbeResult 最近一次探测结果
type ProbeResult struct {
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	CheckAt time.Time `json:"check_at"`
}

// Probe 周期性执行检查函数并保存最近一次结果
type Probe struct {
	name  string
	check func(ctx context.Context) error
	mu    sync.RWMutex
	last  ProbeResult
}

func NewProbe(name string, check func(ctx context.Context) error) *Probe {
	return &Probe{name: name, check: check}
}

func (p *Probe) Name() string { return p.name }

// Run 实现 Job
func (p *Probe) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res := ProbeResult{OK: true, CheckAt: time.Now()}
	if err := p.check(ctx); err != nil {
		res.OK = false
		res.Error = err.Error()
	}
	p.mu.Lock()
	p.last = res
	p.mu.Unlock()
}

// Last 返回最近一次结果，从未执行时 CheckAt 为零值
func (p *Probe) Last() ProbeResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}
