package flow

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoStart   = errors.New("flow has no start node")
	ErrStepLimit = errors.New("flow exceeded step limit")
)

const defaultMaxSteps = 64

// Observer 每个节点结束后回调
type Observer func(report StepReport)

// Trace 一次运行经过的节点
type Trace []StepReport

// Visited 按执行顺序返回节点名
func (t Trace) Visited() []string {
	names := make([]string, 0, len(t))
	for _, r := range t {
		names = append(names, r.Node)
	}
	return names
}

// Find 返回节点的执行记录
func (t Trace) Find(name string) (StepReport, bool) {
	for _, r := range t {
		if r.Node == name {
			return r, true
		}
	}
	return StepReport{}, false
}

// Flow 有向节点图，按 (节点, 标签) 查找下一个节点，目标为空则结束
type Flow[S any] struct {
	start    string
	nodes    map[string]Node[S]
	edges    map[string]map[Action]string
	observer Observer
	maxSteps int
}

func New[S any]() *Flow[S] {
	return &Flow[S]{
		nodes:    make(map[string]Node[S]),
		edges:    make(map[string]map[Action]string),
		maxSteps: defaultMaxSteps,
	}
}

// Add 注册节点，第一个注册的节点默认作为起点
func (f *Flow[S]) Add(n Node[S]) *Flow[S] {
	f.nodes[n.Name()] = n
	if f.start == "" {
		f.start = n.Name()
	}
	return f
}

func (f *Flow[S]) Start(name string) *Flow[S] {
	f.start = name
	return f
}

// Edge from 在返回 action 时转到 to，to 为空表示结束
func (f *Flow[S]) Edge(from string, action Action, to string) *Flow[S] {
	if f.edges[from] == nil {
		f.edges[from] = make(map[Action]string)
	}
	f.edges[from][action] = to
	return f
}

// Then 默认边
func (f *Flow[S]) Then(from, to string) *Flow[S] {
	return f.Edge(from, DefaultAction, to)
}

func (f *Flow[S]) Observe(o Observer) *Flow[S] {
	f.observer = o
	return f
}

func (f *Flow[S]) MaxSteps(n int) *Flow[S] {
	if n > 0 {
		f.maxSteps = n
	}
	return f
}

// Validate 检查起点和所有边的目标都已注册
func (f *Flow[S]) Validate() error {
	if f.start == "" {
		return ErrNoStart
	}
	if _, ok := f.nodes[f.start]; !ok {
		return fmt.Errorf("start node %q not registered", f.start)
	}
	for from, out := range f.edges {
		if _, ok := f.nodes[from]; !ok {
			return fmt.Errorf("edge from unknown node %q", from)
		}
		for action, to := range out {
			if to == "" {
				continue
			}
			if _, ok := f.nodes[to]; !ok {
				return fmt.Errorf("edge %s -%s-> unknown node %q", from, action, to)
			}
		}
	}
	return nil
}

// Next 查转移表，没有对应边时返回空
func (f *Flow[S]) Next(from string, action Action) string {
	return f.edges[from][action]
}

// Run 从起点同步执行到没有后继节点为止
func (f *Flow[S]) Run(ctx context.Context, shared S) (Trace, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var trace Trace
	current := f.start
	for current != "" {
		if len(trace) >= f.maxSteps {
			return trace, ErrStepLimit
		}
		report := f.nodes[current].Run(ctx, shared)
		trace = append(trace, report)
		if f.observer != nil {
			f.observer(report)
		}
		current = f.Next(current, report.Action)
	}
	return trace, nil
}
