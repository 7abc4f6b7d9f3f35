package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"PostcardAgent/internal/flow"
	"PostcardAgent/pkg/logger"
	"PostcardAgent/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Variant 流程形态
type Variant string

const (
	// VariantSimple 校验、生成、保存，不含语音
	VariantSimple Variant = "simple"
	// VariantVoice 在 simple 基础上生成并保存语音
	VariantVoice Variant = "voice"
	// VariantStatus 在 voice 基础上把明信片标记为 delivered
	VariantStatus Variant = "status"
)

// ParseVariant 空字符串视为 voice
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return VariantVoice, nil
	case VariantSimple, VariantVoice, VariantStatus:
		return v, nil
	default:
		return "", fmt.Errorf("unknown pipeline variant: %s", s)
	}
}

// RetryTable 各节点的尝试次数与间隔
type RetryTable map[string]flow.FixedBackoff

// DefaultRetryTable 每个节点的默认重试配置
func DefaultRetryTable() RetryTable {
	return RetryTable{
		StageValidate:     flow.Fixed(2, 2*time.Second),
		StageGenerate:     flow.Fixed(3, 5*time.Second),
		StagePersist:      flow.Fixed(2, 3*time.Second),
		StageVoice:        flow.Fixed(3, 5*time.Second),
		StagePersistVoice: flow.Fixed(2, 3*time.Second),
		StageStatus:       flow.Fixed(2, 3*time.Second),
	}
}

// Options 流程参数
type Options struct {
	Variant               Variant
	Model                 string
	Temperature           float32
	MaxTokens             int
	Apology               string
	AbortOnPersistFailure bool
	Retry                 RetryTable
	RetryWaitScale        float64
	Sleep                 flow.SleepFunc
	Now                   func() time.Time
	Metrics               *metrics.Metrics
}

const defaultApology = "抱歉，我暂时无法生成明信片。请稍后再试。"

func (o *Options) setDefaults() {
	if o.Variant == "" {
		o.Variant = VariantVoice
	}
	if o.Temperature == 0 {
		o.Temperature = 0.7
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 1000
	}
	if o.Apology == "" {
		o.Apology = defaultApology
	}
	if o.Retry == nil {
		o.Retry = DefaultRetryTable()
	}
	if o.RetryWaitScale == 0 {
		o.RetryWaitScale = 1
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Runner 只构建一次流程图，每条消息使用新的 RunContext 同步执行
type Runner struct {
	flow    *flow.Flow[*RunContext]
	variant Variant
	metrics *metrics.Metrics
	newID   func() string
}

func NewRunner(deps Deps, opts Options) (*Runner, error) {
	opts.setDefaults()
	if err := deps.check(opts.Variant); err != nil {
		return nil, err
	}
	schema, err := compileRequestSchema()
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}

	hooks := Hooks{}
	if m := opts.Metrics; m != nil {
		hooks.OnSoftFailure = m.RecordSoftFailure
		hooks.OnVoiceSource = func(src VoiceSource) { m.RecordVoiceSource(string(src)) }
	}
	retry := func(stage string) flow.RetryPolicy {
		b := opts.Retry[stage].Scaled(opts.RetryWaitScale)
		if opts.Sleep != nil {
			b.Sleep = opts.Sleep
		}
		return b
	}

	f := flow.New[*RunContext]().
		Add(flow.NewNode[*RunContext, []byte, *InboundRequest](StageValidate,
			&validateStage{schema: schema}, retry(StageValidate))).
		Add(flow.NewNode[*RunContext, *InboundRequest, *ContentResult](StageGenerate, &generateStage{
			characters:  deps.Characters,
			llm:         deps.LLM,
			model:       opts.Model,
			temperature: opts.Temperature,
			maxTokens:   opts.MaxTokens,
			apology:     opts.Apology,
		}, retry(StageGenerate))).
		Add(flow.NewNode[*RunContext, *ContentResult, bool](StagePersist, &persistContentStage{
			records:       deps.Records,
			abortOnFailed: opts.AbortOnPersistFailure,
			hooks:         hooks,
		}, retry(StagePersist))).
		Start(StageValidate).
		Edge(StageValidate, ActionProcess, StageGenerate).
		Edge(StageValidate, ActionError, "").
		Then(StageGenerate, StagePersist).
		Edge(StagePersist, ActionAbort, "")

	if opts.Variant == VariantVoice || opts.Variant == VariantStatus {
		f.Add(flow.NewNode[*RunContext, *voiceInput, *VoiceResult](StageVoice, &voiceStage{
			characters: deps.Characters,
			records:    deps.Records,
			tts:        deps.TTS,
			objects:    deps.Objects,
			samples:    deps.Samples,
			now:        opts.Now,
			hooks:      hooks,
		}, retry(StageVoice))).
			Add(flow.NewNode[*RunContext, *voiceUpdate, bool](StagePersistVoice, &persistVoiceStage{
				records: deps.Records,
				hooks:   hooks,
			}, retry(StagePersistVoice))).
			Then(StagePersist, StageVoice).
			Then(StageVoice, StagePersistVoice)
	}
	if opts.Variant == VariantStatus {
		f.Add(flow.NewNode[*RunContext, string, bool](StageStatus, &updateStatusStage{
			records: deps.Records,
			hooks:   hooks,
		}, retry(StageStatus))).
			Then(StagePersistVoice, StageStatus)
	}

	f.Observe(func(rep flow.StepReport) {
		fields := []zap.Field{
			zap.String("stage", rep.Node),
			zap.String("action", rep.Action),
			zap.Int("attempts", rep.Attempts),
			zap.Bool("fell_back", rep.FellBack),
			zap.Duration("duration", rep.Duration),
		}
		if rep.Err != nil {
			fields = append(fields, zap.Error(rep.Err))
		}
		logger.Debug("stage finished", fields...)
		if opts.Metrics != nil {
			opts.Metrics.RecordStage(rep.Node, rep.Attempts, rep.FellBack, rep.Duration)
		}
	})
	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &Runner{
		flow:    f,
		variant: opts.Variant,
		metrics: opts.Metrics,
		newID:   uuid.NewString,
	}, nil
}

func (d Deps) check(v Variant) error {
	var missing []string
	if d.Characters == nil {
		missing = append(missing, "characters")
	}
	if d.Records == nil {
		missing = append(missing, "records")
	}
	if d.LLM == nil {
		missing = append(missing, "llm")
	}
	if v != VariantSimple {
		if d.TTS == nil {
			missing = append(missing, "tts")
		}
		if d.Objects == nil {
			missing = append(missing, "objects")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline dependencies missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (r *Runner) Variant() Variant { return r.variant }

// Run 处理一条原始消息，不会 panic，也不会返回 nil
func (r *Runner) Run(ctx context.Context, payload []byte) (res *Result) {
	rc := &RunContext{RunID: r.newID(), Payload: payload}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("pipeline panic",
				zap.String("run_id", rc.RunID),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			res = buildResult(rc, nil)
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v", p)
			if res.ConversationID == "" {
				res.ConversationID = peekConversationID(payload)
			}
		}
		if r.metrics != nil {
			r.metrics.RecordRun(string(r.variant), res.Outcome())
		}
		logger.Info("pipeline finished",
			zap.String("run_id", res.RunID),
			zap.String("conversation_id", res.ConversationID),
			zap.Bool("success", res.Success),
			zap.Bool("voice_generated", res.VoiceGenerated),
			zap.Bool("voice_updated", res.VoiceUpdated),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	trace, err := r.flow.Run(ctx, rc)
	res = buildResult(rc, trace)
	if err != nil {
		res.Error = err.Error()
	}
	if res.ConversationID == "" {
		res.ConversationID = peekConversationID(payload)
	}
	return res
}

// RunRequest 处理已解析的请求
func (r *Runner) RunRequest(ctx context.Context, req InboundRequest) *Result {
	payload, err := json.Marshal(req)
	if err != nil {
		return &Result{RunID: r.newID(), ConversationID: req.ConversationID, Error: err.Error()}
	}
	return r.Run(ctx, payload)
}

// peekConversationID 校验失败时尽量带上会话ID
func peekConversationID(payload []byte) string {
	var probe struct {
		ConversationID any `json:"conversation_id"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil {
		if s, ok := probe.ConversationID.(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}
