package flow

import (
	"context"
	"time"
)

// Action 阶段 Post 返回的转移标签
type Action = string

// DefaultAction Post 未选择具名分支时使用的边
const DefaultAction Action = "default"

// Stage 四阶段契约。P 为空值（如 nil 指针）表示没有可处理的输入，
// Exec 与 Fallback 仍会被调用，需自行返回中性结果。
type Stage[S any, P any, R any] interface {
	Prep(ctx context.Context, shared S) P
	Exec(ctx context.Context, prep P) (R, error)
	// Fallback 在所有尝试失败后调用，不允许失败
	Fallback(ctx context.Context, prep P, err error) R
	Post(ctx context.Context, shared S, prep P, result R) Action
}

// StepReport 单个节点的执行记录
type StepReport struct {
	Node     string        `json:"node"`
	Action   Action        `json:"action"`
	Attempts int           `json:"attempts"`
	FellBack bool          `json:"fell_back"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Node 引擎持有的节点，隐藏阶段的具体类型
type Node[S any] interface {
	Name() string
	Run(ctx context.Context, shared S) StepReport
}

type node[S any, P any, R any] struct {
	name  string
	stage Stage[S, P, R]
	retry RetryPolicy
}

// NewNode 用重试策略包装阶段，retry 为空时只尝试一次
func NewNode[S any, P any, R any](name string, stage Stage[S, P, R], retry RetryPolicy) Node[S] {
	if retry == nil {
		retry = Fixed(1, 0)
	}
	return &node[S, P, R]{name: name, stage: stage, retry: retry}
}

func (n *node[S, P, R]) Name() string { return n.name }

func (n *node[S, P, R]) Run(ctx context.Context, shared S) StepReport {
	start := time.Now()
	report := StepReport{Node: n.name}

	prep := n.stage.Prep(ctx, shared)

	var (
		result R
		err    error
	)
	limit := n.retry.MaxAttempts()
	for attempt := 1; attempt <= limit; attempt++ {
		report.Attempts = attempt
		result, err = n.stage.Exec(ctx, prep)
		if err == nil {
			break
		}
		if attempt == limit {
			break
		}
		if werr := n.retry.Wait(ctx, attempt); werr != nil {
			// 上下文结束，不再重试
			break
		}
	}
	if err != nil {
		report.Err = err
		report.FellBack = true
		result = n.stage.Fallback(ctx, prep, err)
	}

	action := n.stage.Post(ctx, shared, prep, result)
	if action == "" {
		action = DefaultAction
	}
	report.Action = action
	report.Duration = time.Since(start)
	return report
}
