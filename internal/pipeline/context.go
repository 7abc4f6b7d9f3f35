package pipeline

import (
	"PostcardAgent/internal/flow"
)

// InboundRequest 队列消息体
type InboundRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         uint   `json:"user_id"`
	CharacterID    uint   `json:"character_id"`
	UserMessage    string `json:"user_message"`
}

// ContentResult 生成（或兜底）的明信片内容
type ContentResult struct {
	Content        string
	ConversationID string
	UserID         uint
	CharacterID    uint
	Apology        bool
}

// VoiceSource 声音来源
type VoiceSource string

const (
	VoiceSourceNone    VoiceSource = ""
	VoiceSourceCached  VoiceSource = "cached"
	VoiceSourceTrained VoiceSource = "trained"
	VoiceSourceDefault VoiceSource = "default"
)

// VoiceResult 语音生成结果，VoiceURL 为空表示没有语音
type VoiceResult struct {
	VoiceURL       *string
	ObjectKey      string
	ConversationID string
	CharacterID    uint
	VoiceID        *string
	NewVoiceID     string
	Source         VoiceSource
	Err            string
}

// RunContext 单次运行的共享状态，只在一次运行内使用
type RunContext struct {
	RunID   string
	Payload []byte

	Request       *InboundRequest
	Content       *ContentResult
	ContentSaved  bool
	Voice         *VoiceResult
	VoiceUpdated  bool
	StatusUpdated bool

	aborted bool
}

// Result 一次运行的结果，交给消费者记录后确认消息
type Result struct {
	RunID           string     `json:"run_id"`
	Success         bool       `json:"success"`
	ConversationID  string     `json:"conversation_id"`
	UserID          uint       `json:"user_id"`
	CharacterID     uint       `json:"character_id"`
	PostcardContent *string    `json:"postcard_content"`
	VoiceGenerated  bool       `json:"voice_generated"`
	VoiceUpdated    bool       `json:"voice_updated"`
	VoiceURL        *string    `json:"voice_url"`
	StatusUpdated   bool       `json:"status_updated"`
	Apology         bool       `json:"apology,omitempty"`
	Aborted         bool       `json:"aborted,omitempty"`
	Error           string     `json:"error,omitempty"`
	Trace           flow.Trace `json:"trace,omitempty"`
}

// Outcome 用于指标标签
func (r *Result) Outcome() string {
	switch {
	case r.Error != "" || !r.Success:
		return "failed"
	case r.Apology:
		return "degraded"
	default:
		return "success"
	}
}

func buildResult(rc *RunContext, trace flow.Trace) *Result {
	res := &Result{
		RunID:          rc.RunID,
		Success:        rc.ContentSaved,
		VoiceGenerated: rc.Voice != nil && rc.Voice.VoiceURL != nil,
		VoiceUpdated:   rc.VoiceUpdated,
		StatusUpdated:  rc.StatusUpdated,
		Aborted:        rc.aborted,
		Trace:          trace,
	}
	if rc.Request != nil {
		res.ConversationID = rc.Request.ConversationID
		res.UserID = rc.Request.UserID
		res.CharacterID = rc.Request.CharacterID
	}
	if rc.Content != nil {
		content := rc.Content.Content
		res.PostcardContent = &content
		res.Apology = rc.Content.Apology
	}
	if rc.Voice != nil {
		res.VoiceURL = rc.Voice.VoiceURL
	}
	return res
}
