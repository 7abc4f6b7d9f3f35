package pipeline

import (
	"context"

	"PostcardAgent/internal/flow"
	"PostcardAgent/internal/models"
	"PostcardAgent/pkg/errors"
	"PostcardAgent/pkg/llm"
	"PostcardAgent/pkg/logger"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// 节点名
const (
	StageValidate     = "validate"
	StageGenerate     = "generate_content"
	StagePersist      = "persist_content"
	StageVoice        = "generate_voice"
	StagePersistVoice = "persist_voice"
	StageStatus       = "update_status"
)

// 转移标签
const (
	ActionProcess flow.Action = "process"
	ActionError   flow.Action = "error"
	ActionAbort   flow.Action = "abort"
)

// validateStage 校验消息并写入 RunContext.Request
type validateStage struct {
	schema *jsonschema.Schema
}

func (s *validateStage) Prep(ctx context.Context, rc *RunContext) []byte {
	return rc.Payload
}

func (s *validateStage) Exec(ctx context.Context, payload []byte) (*InboundRequest, error) {
	return decodeRequest(s.schema, payload)
}

func (s *validateStage) Fallback(ctx context.Context, payload []byte, err error) *InboundRequest {
	logger.Warn("message rejected", zap.Error(err), zap.ByteString("payload", truncateBytes(payload, 200)))
	return nil
}

func (s *validateStage) Post(ctx context.Context, rc *RunContext, payload []byte, req *InboundRequest) flow.Action {
	if req == nil {
		return ActionError
	}
	rc.Request = req
	logger.Info("message accepted",
		zap.String("run_id", rc.RunID),
		zap.String("conversation_id", req.ConversationID),
		zap.Uint("user_id", req.UserID),
		zap.Uint("character_id", req.CharacterID),
	)
	return ActionProcess
}

// generateStage 调用大模型生成明信片正文
type generateStage struct {
	characters  CharacterDirectory
	llm         llm.LLM
	model       string
	temperature float32
	maxTokens   int
	apology     string
}

func (s *generateStage) Prep(ctx context.Context, rc *RunContext) *InboundRequest {
	return rc.Request
}

func (s *generateStage) Exec(ctx context.Context, req *InboundRequest) (*ContentResult, error) {
	if req == nil {
		return nil, nil
	}
	character, err := s.characters.GetCharacter(ctx, req.CharacterID)
	if err != nil {
		return nil, errors.Transient(err, "lookup character")
	}
	if character == nil {
		return nil, errors.NotFound("character %d not found", req.CharacterID)
	}

	text, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Model:        s.model,
		SystemPrompt: BuildRolePrompt(character),
		UserMessage:  req.UserMessage,
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
	})
	if err != nil {
		return nil, errors.Transient(err, "llm completion")
	}
	if text == "" {
		return nil, errors.WithCode(errors.CodeTransient, "llm returned empty content")
	}

	logger.Info("postcard generated",
		zap.String("conversation_id", req.ConversationID),
		zap.String("character", character.Name),
		zap.Int("chars", len([]rune(text))),
	)
	return &ContentResult{
		Content:        text,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		CharacterID:    req.CharacterID,
	}, nil
}

func (s *generateStage) Fallback(ctx context.Context, req *InboundRequest, err error) *ContentResult {
	if req == nil {
		return nil
	}
	logger.Warn("postcard generation failed, using apology",
		zap.String("conversation_id", req.ConversationID),
		zap.Int("code", errors.GetCode(err)),
		zap.Error(err),
	)
	return &ContentResult{
		Content:        s.apology,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		CharacterID:    req.CharacterID,
		Apology:        true,
	}
}

func (s *generateStage) Post(ctx context.Context, rc *RunContext, req *InboundRequest, res *ContentResult) flow.Action {
	if res != nil {
		rc.Content = res
	} else {
		logger.Warn("postcard content empty", zap.String("run_id", rc.RunID))
	}
	return flow.DefaultAction
}

// persistContentStage 插入一条 ai 明信片
type persistContentStage struct {
	records       RecordStore
	abortOnFailed bool
	hooks         Hooks
}

func (s *persistContentStage) Prep(ctx context.Context, rc *RunContext) *ContentResult {
	return rc.Content
}

func (s *persistContentStage) Exec(ctx context.Context, c *ContentResult) (bool, error) {
	if c == nil {
		return false, nil
	}
	n, err := s.records.InsertPostcard(ctx, c.ConversationID, c.UserID, c.CharacterID, models.PostcardKindAI, c.Content)
	if err != nil {
		return false, errors.Persistence(err, "insert postcard")
	}
	if n == 0 {
		s.hooks.softFailure("insert_postcard")
		logger.Warn("insert postcard affected no rows", zap.String("conversation_id", c.ConversationID))
		return false, nil
	}
	return true, nil
}

func (s *persistContentStage) Fallback(ctx context.Context, c *ContentResult, err error) bool {
	logger.Error("save postcard failed", zap.Error(err))
	return false
}

func (s *persistContentStage) Post(ctx context.Context, rc *RunContext, c *ContentResult, saved bool) flow.Action {
	rc.ContentSaved = saved
	if saved {
		logger.Info("postcard saved", zap.String("conversation_id", c.ConversationID))
		return flow.DefaultAction
	}
	if s.abortOnFailed && c != nil {
		rc.aborted = true
		logger.Warn("postcard not saved, aborting run", zap.String("conversation_id", c.ConversationID))
		return ActionAbort
	}
	return flow.DefaultAction
}

type voiceUpdate struct {
	ConversationID string
	VoiceURL       string
}

// persistVoiceStage 把语音地址写回明信片
type persistVoiceStage struct {
	records RecordStore
	hooks   Hooks
}

func (s *persistVoiceStage) Prep(ctx context.Context, rc *RunContext) *voiceUpdate {
	if rc.Content == nil || rc.Voice == nil {
		logger.Warn("postcard or voice missing, skip voice update", zap.String("run_id", rc.RunID))
		return nil
	}
	if rc.Voice.VoiceURL == nil {
		return nil
	}
	return &voiceUpdate{ConversationID: rc.Content.ConversationID, VoiceURL: *rc.Voice.VoiceURL}
}

func (s *persistVoiceStage) Exec(ctx context.Context, u *voiceUpdate) (bool, error) {
	if u == nil {
		return false, nil
	}
	n, err := s.records.UpdatePostcardVoice(ctx, u.ConversationID, &u.VoiceURL)
	if err != nil {
		return false, errors.Persistence(err, "update postcard voice")
	}
	if n == 0 {
		s.hooks.softFailure("update_postcard_voice")
		logger.Warn("no postcard matched voice update", zap.String("conversation_id", u.ConversationID))
		return false, nil
	}
	return true, nil
}

func (s *persistVoiceStage) Fallback(ctx context.Context, u *voiceUpdate, err error) bool {
	logger.Error("update postcard voice failed", zap.Error(err))
	return false
}

func (s *persistVoiceStage) Post(ctx context.Context, rc *RunContext, u *voiceUpdate, updated bool) flow.Action {
	rc.VoiceUpdated = updated
	return flow.DefaultAction
}

// updateStatusStage sent -> delivered
type updateStatusStage struct {
	records RecordStore
	hooks   Hooks
}

func (s *updateStatusStage) Prep(ctx context.Context, rc *RunContext) string {
	if rc.Content == nil {
		return ""
	}
	return rc.Content.ConversationID
}

func (s *updateStatusStage) Exec(ctx context.Context, conversationID string) (bool, error) {
	if conversationID == "" {
		return false, nil
	}
	n, err := s.records.UpdatePostcardStatus(ctx, conversationID, models.PostcardStatusDelivered)
	if err != nil {
		return false, errors.Persistence(err, "update postcard status")
	}
	if n == 0 {
		s.hooks.softFailure("update_postcard_status")
		logger.Warn("no postcard to mark delivered", zap.String("conversation_id", conversationID))
		return false, nil
	}
	return true, nil
}

func (s *updateStatusStage) Fallback(ctx context.Context, conversationID string, err error) bool {
	logger.Error("update postcard status failed", zap.String("conversation_id", conversationID), zap.Error(err))
	return false
}

func (s *updateStatusStage) Post(ctx context.Context, rc *RunContext, conversationID string, updated bool) flow.Action {
	rc.StatusUpdated = updated
	return flow.DefaultAction
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
