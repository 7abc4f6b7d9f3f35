package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"PostcardAgent/internal/flow"
	"PostcardAgent/pkg/errors"
	"PostcardAgent/pkg/logger"
	stores "PostcardAgent/pkg/storage"
	"PostcardAgent/pkg/tts"

	"go.uber.org/zap"
)

const (
	trainingTranscript = "这是一个测试文本，用于训练自定义语音模型。"
	maxSampleBytes     = 20 << 20
)

// voiceInput 语音阶段输入。训练结果在多次尝试间保留，合成失败重试时不会再次训练
type voiceInput struct {
	Content        string
	ConversationID string
	CharacterID    uint
	VoiceID        *string
	VoiceURL       *string

	trainedID   string
	trainFailed bool
}

func (in *voiceInput) hasVoiceID() bool {
	return in.VoiceID != nil && *in.VoiceID != ""
}

// voiceStage 选择声音来源、合成并上传
type voiceStage struct {
	characters CharacterDirectory
	records    RecordStore
	tts        tts.TTS
	objects    ObjectStore
	samples    SampleFetcher
	now        func() time.Time
	hooks      Hooks
}

func (s *voiceStage) Prep(ctx context.Context, rc *RunContext) *voiceInput {
	c := rc.Content
	if c == nil || c.Content == "" || c.ConversationID == "" {
		logger.Warn("postcard content missing, skip voice", zap.String("run_id", rc.RunID))
		return nil
	}
	in := &voiceInput{
		Content:        c.Content,
		ConversationID: c.ConversationID,
		CharacterID:    c.CharacterID,
	}
	profile, err := s.characters.GetVoiceProfile(ctx, c.CharacterID)
	if err != nil {
		logger.Error("lookup voice profile failed", zap.Uint("character_id", c.CharacterID), zap.Error(err))
	} else if profile != nil {
		in.VoiceID = profile.VoiceID
		in.VoiceURL = profile.VoiceURL
	}
	logger.Info("voice prepared",
		zap.String("conversation_id", in.ConversationID),
		zap.Uint("character_id", in.CharacterID),
		zap.Bool("has_voice_id", in.hasVoiceID()),
	)
	return in
}

// Exec 依次尝试：已有 voice_id、用 voice_url 训练、默认声音
func (s *voiceStage) Exec(ctx context.Context, in *voiceInput) (*VoiceResult, error) {
	if in == nil {
		return nil, nil
	}
	text := SanitizeForSpeech(in.Content)

	ref, source := s.resolveVoice(ctx, in)
	audio, err := s.tts.Synthesize(ctx, text, ref)
	if err != nil {
		return nil, errors.Transient(err, "synthesize voice")
	}

	key := VoiceObjectKey(in.CharacterID, s.now(), s.tts.Format())
	if err := s.objects.Write(ctx, key, bytes.NewReader(audio), int64(len(audio)), stores.ContentTypeFor(s.tts.Format())); err != nil {
		return nil, errors.Transient(err, "upload voice")
	}
	url := s.objects.PublicURL(key)

	res := &VoiceResult{
		VoiceURL:       &url,
		ObjectKey:      key,
		ConversationID: in.ConversationID,
		CharacterID:    in.CharacterID,
		VoiceID:        in.VoiceID,
		Source:         source,
	}
	if source == VoiceSourceTrained {
		res.NewVoiceID = ref
		res.VoiceID = &res.NewVoiceID
	}
	logger.Info("voice generated",
		zap.String("conversation_id", in.ConversationID),
		zap.String("source", string(source)),
		zap.String("key", key),
	)
	return res, nil
}

func (s *voiceStage) resolveVoice(ctx context.Context, in *voiceInput) (string, VoiceSource) {
	if in.hasVoiceID() {
		return *in.VoiceID, VoiceSourceCached
	}
	if in.trainedID != "" {
		return in.trainedID, VoiceSourceTrained
	}
	if in.VoiceURL != nil && *in.VoiceURL != "" && !in.trainFailed {
		id, err := s.train(ctx, in)
		if err == nil {
			in.trainedID = id
			return id, VoiceSourceTrained
		}
		in.trainFailed = true
		logger.Warn("custom voice training failed, using default voice",
			zap.Uint("character_id", in.CharacterID),
			zap.Bool("unsupported", errors.IsCode(err, errors.CodeUnsupported)),
			zap.Error(err),
		)
	}
	return "", VoiceSourceDefault
}

func (s *voiceStage) train(ctx context.Context, in *voiceInput) (string, error) {
	sample, err := s.fetchSample(ctx, *in.VoiceURL)
	if err != nil {
		return "", errors.Transient(err, "download voice sample")
	}
	id, err := s.tts.Train(ctx, tts.TrainRequest{
		Title:       fmt.Sprintf("character_%d_voice", in.CharacterID),
		Description: fmt.Sprintf("Custom voice for character %d", in.CharacterID),
		Visibility:  "private",
		Samples:     [][]byte{sample},
		Texts:       []string{trainingTranscript},
	})
	if err != nil {
		return "", err
	}
	logger.Info("custom voice trained", zap.Uint("character_id", in.CharacterID), zap.String("voice_id", id))
	return id, nil
}

// fetchSample 样本在自己的存储桶里时直接读对象，否则走 HTTP
func (s *voiceStage) fetchSample(ctx context.Context, url string) ([]byte, error) {
	if key, ok := stores.KeyFromURL(s.objects, url); ok {
		rc, _, err := s.objects.Read(ctx, key)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(io.LimitReader(rc, maxSampleBytes))
	}
	if s.samples == nil {
		return nil, fmt.Errorf("no sample fetcher for %s", url)
	}
	return s.samples.Fetch(ctx, url)
}

func (s *voiceStage) Fallback(ctx context.Context, in *voiceInput, err error) *VoiceResult {
	if in == nil {
		return nil
	}
	logger.Warn("voice generation failed, continuing without voice",
		zap.String("conversation_id", in.ConversationID),
		zap.Error(err),
	)
	res := &VoiceResult{
		ConversationID: in.ConversationID,
		CharacterID:    in.CharacterID,
		VoiceID:        in.VoiceID,
		NewVoiceID:     in.trainedID,
		Err:            err.Error(),
	}
	return res
}

func (s *voiceStage) Post(ctx context.Context, rc *RunContext, in *voiceInput, res *VoiceResult) flow.Action {
	if res == nil {
		return flow.DefaultAction
	}
	rc.Voice = res
	if res.Source != VoiceSourceNone {
		s.hooks.voiceSource(res.Source)
	}
	if res.NewVoiceID != "" && in != nil && !in.hasVoiceID() {
		n, err := s.records.UpdateCharacterVoiceID(ctx, in.CharacterID, res.NewVoiceID)
		switch {
		case err != nil:
			logger.Error("save character voice id failed", zap.Uint("character_id", in.CharacterID), zap.Error(err))
		case n == 0:
			s.hooks.softFailure("update_character_voice_id")
			logger.Warn("character already has a voice id", zap.Uint("character_id", in.CharacterID))
		default:
			logger.Info("character voice id saved", zap.Uint("character_id", in.CharacterID), zap.String("voice_id", res.NewVoiceID))
		}
	}
	return flow.DefaultAction
}

// VoiceObjectKey voices/character_<id>/<YYYYMMDD_HHMMSS>.<ext>，没有角色时放 voices/system
func VoiceObjectKey(characterID uint, at time.Time, ext string) string {
	stamp := at.Format("20060102_150405")
	if characterID == 0 {
		return fmt.Sprintf("voices/system/%s.%s", stamp, ext)
	}
	return fmt.Sprintf("voices/character_%d/%s.%s", characterID, stamp, ext)
}
