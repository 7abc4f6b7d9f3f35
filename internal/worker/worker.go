package worker

import (
	"context"
	"errors"
	"time"

	"PostcardAgent/internal/flow"
	"PostcardAgent/internal/pipeline"
	"PostcardAgent/pkg/logger"
	"PostcardAgent/pkg/metrics"
	"PostcardAgent/pkg/queue"

	"go.uber.org/zap"
)

// Runner 处理一条原始消息
type Runner interface {
	Run(ctx context.Context, payload []byte) *pipeline.Result
}

// Worker 逐条消费：接收、运行流程、确认。无论结果如何消息都只确认一次
type Worker struct {
	consumer   queue.Consumer
	runner     Runner
	throttle   *Throttle
	metrics    *metrics.Metrics
	onResult   func(*pipeline.Result)
	retryDelay time.Duration
	sleep      flow.SleepFunc
	handled    int
}

type Option func(*Worker)

func WithThrottle(t *Throttle) Option { return func(w *Worker) { w.throttle = t } }

func WithMetrics(m *metrics.Metrics) Option { return func(w *Worker) { w.metrics = m } }

// WithResultHook 每条消息处理完成后回调
func WithResultHook(fn func(*pipeline.Result)) Option { return func(w *Worker) { w.onResult = fn } }

// WithReceiveRetry 接收失败后的等待时间
func WithReceiveRetry(d time.Duration, sleep flow.SleepFunc) Option {
	return func(w *Worker) {
		w.retryDelay = d
		if sleep != nil {
			w.sleep = sleep
		}
	}
}

func New(consumer queue.Consumer, runner Runner, opts ...Option) *Worker {
	w := &Worker{
		consumer:   consumer,
		runner:     runner,
		retryDelay: time.Second,
		sleep:      flow.ContextSleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 循环消费直到 ctx 取消（返回 nil）或队列关闭（返回 queue.ErrClosed）
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("consumer started")
	for {
		if err := w.throttle.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("consume throttle failed", zap.Error(err))
		}

		d, err := w.consumer.Receive(ctx)
		switch {
		case err == nil:
			w.handle(ctx, d)
		case ctx.Err() != nil:
			logger.Info("consumer stopped", zap.Int("handled", w.handled))
			return nil
		case errors.Is(err, queue.ErrClosed):
			logger.Warn("queue closed, consumer exiting", zap.Int("handled", w.handled))
			return err
		default:
			logger.Error("receive message failed", zap.Error(err))
			if err := w.sleep(ctx, w.retryDelay); err != nil {
				return nil
			}
		}
	}
}

// handle 当前消息在关闭信号到来后仍会处理完再确认
func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	res := w.runner.Run(context.WithoutCancel(ctx), d.Body)
	w.handled++

	result := "acked"
	if err := d.Ack(); err != nil {
		result = "ack_failed"
		logger.Error("ack message failed", zap.String("conversation_id", res.ConversationID), zap.Error(err))
	}
	if w.metrics != nil {
		w.metrics.RecordDelivery(result)
	}
	if w.onResult != nil {
		w.onResult(res)
	}
	if !res.Success {
		logger.Warn("message handled without postcard",
			zap.String("run_id", res.RunID),
			zap.String("conversation_id", res.ConversationID),
			zap.String("error", res.Error),
		)
	}
}

// Handled 已处理的消息数
func (w *Worker) Handled() int { return w.handled }
