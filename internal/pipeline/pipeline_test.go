package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"PostcardAgent/internal/models"
	"PostcardAgent/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainsVoiceFromSampleEndToEnd(t *testing.T) {
	h := newHarness(t)
	c := h.seedCharacter(t, nil, strPtr("http://sample.audio"))
	r := h.runner(t)

	res := r.RunRequest(context.Background(), request("c1", c.ID))

	require.Empty(t, res.Error)
	assert.True(t, res.Success)
	assert.True(t, res.VoiceGenerated)
	assert.True(t, res.VoiceUpdated)
	assert.False(t, res.Apology)
	assert.Equal(t, "success", res.Outcome())
	assert.Equal(t, []string{StageValidate, StageGenerate, StagePersist, StageVoice, StagePersistVoice}, res.Trace.Visited())

	assert.Equal(t, []string{"train", "synthesize"}, h.tts.events)
	assert.Equal(t, []string{"voice-trained"}, h.tts.synthRefs)
	assert.Equal(t, []string{"http://sample.audio"}, h.samples.urls)
	require.Len(t, h.tts.trainReqs, 1)
	assert.Equal(t, "character_1_voice", h.tts.trainReqs[0].Title)
	assert.Equal(t, "private", h.tts.trainReqs[0].Visibility)
	assert.Equal(t, [][]byte{[]byte("sample-wav")}, h.tts.trainReqs[0].Samples)

	key := "voices/character_1/20250102_030405.wav"
	assert.Contains(t, h.objects.objects, key)

	cards := h.postcards(t, "c1")
	require.Len(t, cards, 1)
	assert.Equal(t, models.PostcardKindAI, cards[0].Kind)
	assert.Equal(t, models.PostcardStatusSent, cards[0].Status)
	assert.Equal(t, "见字如面，愿你安好。", cards[0].Content)
	require.NotNil(t, cards[0].VoiceURL)
	assert.Equal(t, objectBase+key, *cards[0].VoiceURL)
	require.NotNil(t, res.VoiceURL)
	assert.Equal(t, objectBase+key, *res.VoiceURL)

	profile, err := h.store.GetVoiceProfile(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.VoiceID)
	assert.Equal(t, "voice-trained", *profile.VoiceID)
}

func TestSecondRunReusesTrainedVoice(t *testing.T) {
	h := newHarness(t)
	c := h.seedCharacter(t, nil, strPtr("http://sample.audio"))
	r := h.runner(t)

	r.RunRequest(context.Background(), request("c1", c.ID))
	res := r.RunRequest(context.Background(), request("c2", c.ID))

	assert.True(t, res.Success)
	assert.Len(t, h.tts.trainReqs, 1)
	assert.Equal(t, []string{"voice-trained", "voice-trained"}, h.tts.synthRefs)
}

func TestCachedVoiceIDSkipsTraining(t *testing.T) {
	h := newHarness(t)
	c := h.seedCharacter(t, strPtr("voice-cached"), strPtr("http://sample.audio"))

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.True(t, res.VoiceUpdated)
	assert.Empty(t, h.tts.trainReqs)
	assert.Empty(t, h.samples.urls)
	assert.Equal(t, []string{"voice-cached"}, h.tts.synthRefs)
}

func TestDefaultVoiceWithoutProfile(t *testing.T) {
	h := newHarness(t)
	c := h.seedCharacter(t, nil, nil)

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.True(t, res.VoiceUpdated)
	assert.Empty(t, h.tts.trainReqs)
	assert.Equal(t, []string{""}, h.tts.synthRefs)

	profile, err := h.store.GetVoiceProfile(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, profile.VoiceID)
}

func TestTrainingFailureUsesDefaultVoice(t *testing.T) {
	for name, trainErr := range map[string]error{
		"transient":   errDown,
		"unsupported": errors.WithCode(errors.CodeUnsupported, "polly cannot train voices"),
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.tts.trainErr = trainErr
			c := h.seedCharacter(t, nil, strPtr("http://sample.audio"))

			res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

			assert.True(t, res.VoiceUpdated)
			assert.Equal(t, []string{"train", "synthesize"}, h.tts.events)
			assert.Equal(t, []string{""}, h.tts.synthRefs)
			rep, ok := res.Trace.Find(StageVoice)
			require.True(t, ok)
			assert.Equal(t, 1, rep.Attempts)

			profile, err := h.store.GetVoiceProfile(context.Background(), c.ID)
			require.NoError(t, err)
			assert.Nil(t, profile.VoiceID)
		})
	}
}

func TestSampleInOwnBucketIsReadDirectly(t *testing.T) {
	h := newHarness(t)
	h.objects.objects["samples/c1.wav"] = []byte("bucket-sample")
	c := h.seedCharacter(t, nil, strPtr(objectBase+"samples/c1.wav"))

	h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.Empty(t, h.samples.urls)
	require.Len(t, h.tts.trainReqs, 1)
	assert.Equal(t, [][]byte{[]byte("bucket-sample")}, h.tts.trainReqs[0].Samples)
}

func TestSynthesisRetryKeepsTrainedVoice(t *testing.T) {
	h := newHarness(t)
	h.tts.synthFails = 1
	c := h.seedCharacter(t, nil, strPtr("http://sample.audio"))

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.True(t, res.VoiceUpdated)
	assert.Equal(t, []string{"train", "synthesize", "synthesize"}, h.tts.events)
	assert.Equal(t, []time.Duration{5 * time.Second}, h.waits)
}

func TestVoiceFailureLeavesPostcardWithoutVoice(t *testing.T) {
	h := newHarness(t)
	h.tts.synthFails = -1
	c := h.seedCharacter(t, nil, strPtr("http://sample.audio"))

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.True(t, res.Success)
	assert.False(t, res.VoiceGenerated)
	assert.False(t, res.VoiceUpdated)
	assert.Nil(t, res.VoiceURL)
	assert.Len(t, h.tts.trainReqs, 1)
	assert.Len(t, h.tts.synthRefs, 3)

	rep, ok := res.Trace.Find(StageVoice)
	require.True(t, ok)
	assert.True(t, rep.FellBack)
	assert.Equal(t, 3, rep.Attempts)

	cards := h.postcards(t, "c1")
	require.Len(t, cards, 1)
	assert.Nil(t, cards[0].VoiceURL)

	// 训练成功的 voice_id 仍然保存
	profile, err := h.store.GetVoiceProfile(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.VoiceID)
	assert.Equal(t, "voice-trained", *profile.VoiceID)
}

func TestValidateRejectsIncompleteMessages(t *testing.T) {
	full := map[string]any{
		"conversation_id": "c1",
		"user_id":         1,
		"character_id":    1,
		"user_message":    "hello",
	}
	for _, field := range []string{"conversation_id", "user_id", "character_id", "user_message"} {
		t.Run(field, func(t *testing.T) {
			h := newHarness(t)
			h.seedCharacter(t, nil, nil)
			msg := map[string]any{}
			for k, v := range full {
				if k != field {
					msg[k] = v
				}
			}
			payload, err := json.Marshal(msg)
			require.NoError(t, err)

			res := h.runner(t).Run(context.Background(), payload)

			assert.False(t, res.Success)
			assert.Equal(t, "failed", res.Outcome())
			assert.Equal(t, []string{StageValidate}, res.Trace.Visited())
			assert.Zero(t, h.llm.calls)
			assert.Empty(t, h.postcards(t, "c1"))
		})
	}
}

func TestValidateRejectsWrongTypesAndNulls(t *testing.T) {
	cases := map[string]string{
		"empty conversation": `{"conversation_id":"","user_id":1,"character_id":1,"user_message":"hello"}`,
		"string user id":     `{"conversation_id":"c1","user_id":"1","character_id":1,"user_message":"hello"}`,
		"null message":       `{"conversation_id":"c1","user_id":1,"character_id":1,"user_message":null}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.seedCharacter(t, nil, nil)

			res := h.runner(t).Run(context.Background(), []byte(payload))

			assert.False(t, res.Success)
			assert.Equal(t, []string{StageValidate}, res.Trace.Visited())
			rep, ok := res.Trace.Find(StageValidate)
			require.True(t, ok)
			assert.True(t, errors.IsCode(rep.Err, errors.CodeValidation))
			assert.Zero(t, h.llm.calls)
			assert.Empty(t, h.postcards(t, "c1"))
		})
	}
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	h := newHarness(t)

	res := h.runner(t).Run(context.Background(), []byte("{not json"))

	assert.False(t, res.Success)
	assert.Equal(t, "unknown", res.ConversationID)
	rep, ok := res.Trace.Find(StageValidate)
	require.True(t, ok)
	assert.True(t, rep.FellBack)
	assert.Equal(t, 2, rep.Attempts)
	assert.True(t, errors.IsCode(rep.Err, errors.CodeValidation))
}

func TestValidateKeepsConversationIDOfRejectedMessage(t *testing.T) {
	h := newHarness(t)

	res := h.runner(t).Run(context.Background(), []byte(`{"conversation_id":"c9","user_id":1}`))

	assert.False(t, res.Success)
	assert.Equal(t, "c9", res.ConversationID)
}

func TestGenerateFailurePersistsApology(t *testing.T) {
	h := newHarness(t)
	h.llm.err = errDown
	c := h.seedCharacter(t, nil, nil)

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.Equal(t, 3, h.llm.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, h.waits)
	assert.True(t, res.Success)
	assert.True(t, res.Apology)
	assert.Equal(t, "degraded", res.Outcome())
	require.NotNil(t, res.PostcardContent)
	assert.Equal(t, defaultApology, *res.PostcardContent)

	cards := h.postcards(t, "c1")
	require.Len(t, cards, 1)
	assert.Equal(t, defaultApology, cards[0].Content)
}

func TestUnknownCharacterPersistsApology(t *testing.T) {
	h := newHarness(t)
	h.opts.Variant = VariantSimple
	h.opts.Apology = "Sorry, no postcard today."

	res := h.runner(t).RunRequest(context.Background(), request("c1", 42))

	assert.Zero(t, h.llm.calls)
	assert.True(t, res.Apology)
	cards := h.postcards(t, "c1")
	require.Len(t, cards, 1)
	assert.Equal(t, "Sorry, no postcard today.", cards[0].Content)
	assert.EqualValues(t, 42, cards[0].CharacterID)
}

func TestEmptyCompletionIsRetried(t *testing.T) {
	h := newHarness(t)
	h.llm.reply = ""
	c := h.seedCharacter(t, nil, nil)

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.Equal(t, 3, h.llm.calls)
	assert.True(t, res.Apology)
}

func TestGenerateUsesRolePrompt(t *testing.T) {
	h := newHarness(t)
	h.opts.Temperature = 0.3
	h.opts.MaxTokens = 256
	c := h.seedCharacter(t, nil, nil)

	h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.Equal(t, "test-model", h.llm.lastReq.Model)
	assert.Equal(t, "hello", h.llm.lastReq.UserMessage)
	assert.Equal(t, float32(0.3), h.llm.lastReq.Temperature)
	assert.Equal(t, 256, h.llm.lastReq.MaxTokens)
	assert.Contains(t, h.llm.lastReq.SystemPrompt, "你正在扮演角色：大大怪将军")
}

func TestPersistFailureContinuesByDefault(t *testing.T) {
	h := newHarness(t)
	c := h.seedCharacter(t, nil, nil)
	h.deps.Records = &failingRecords{RecordStore: h.store, insertErr: errDown}

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.False(t, res.Success)
	assert.False(t, res.Aborted)
	assert.Equal(t, []string{""}, h.tts.synthRefs)
	// 没有 ai 记录可更新
	assert.False(t, res.VoiceUpdated)
	assert.Empty(t, h.postcards(t, "c1"))
}

func TestPersistFailureAbortsWhenConfigured(t *testing.T) {
	h := newHarness(t)
	c := h.seedCharacter(t, nil, nil)
	h.deps.Records = &failingRecords{RecordStore: h.store, insertErr: errDown}
	h.opts.AbortOnPersistFailure = true

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.False(t, res.Success)
	assert.True(t, res.Aborted)
	assert.Equal(t, []string{StageValidate, StageGenerate, StagePersist}, res.Trace.Visited())
	assert.Empty(t, h.tts.events)
}

func TestSimpleVariantSkipsVoice(t *testing.T) {
	h := newHarness(t)
	h.opts.Variant = VariantSimple
	h.deps.TTS = nil
	h.deps.Objects = nil
	c := h.seedCharacter(t, nil, strPtr("http://sample.audio"))

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.True(t, res.Success)
	assert.False(t, res.VoiceGenerated)
	assert.Equal(t, []string{StageValidate, StageGenerate, StagePersist}, res.Trace.Visited())
}

func TestStatusVariantMarksConversationDelivered(t *testing.T) {
	h := newHarness(t)
	h.opts.Variant = VariantStatus
	c := h.seedCharacter(t, strPtr("voice-cached"), nil)
	_, err := h.store.InsertPostcard(context.Background(), "c1", 1, c.ID, models.PostcardKindUser, "你好")
	require.NoError(t, err)

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.True(t, res.StatusUpdated)
	assert.Equal(t, StageStatus, res.Trace[len(res.Trace)-1].Node)
	cards := h.postcards(t, "c1")
	require.Len(t, cards, 2)
	for _, card := range cards {
		assert.Equal(t, models.PostcardStatusDelivered, card.Status)
	}
	// 只有 ai 明信片挂上语音
	assert.Nil(t, cards[0].VoiceURL)
	assert.NotNil(t, cards[1].VoiceURL)
}

func TestUpdateStatusIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.InsertPostcard(ctx, "c1", 1, 1, models.PostcardKindAI, "见字如面")
	require.NoError(t, err)

	var soft []string
	s := &updateStatusStage{records: h.store, hooks: Hooks{OnSoftFailure: func(op string) { soft = append(soft, op) }}}

	first, err := s.Exec(ctx, "c1")
	require.NoError(t, err)
	second, err := s.Exec(ctx, "c1")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, []string{"update_postcard_status"}, soft)
	cards := h.postcards(t, "c1")
	assert.Equal(t, models.PostcardStatusDelivered, cards[0].Status)
}

func TestRunRecoversFromPanic(t *testing.T) {
	h := newHarness(t)
	h.llm.panics = true
	c := h.seedCharacter(t, nil, nil)

	res := h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, "c1", res.ConversationID)
	assert.True(t, strings.HasPrefix(res.Error, "panic: "))
	assert.Empty(t, h.postcards(t, "c1"))
}

func TestRetryWaitScale(t *testing.T) {
	h := newHarness(t)
	h.opts.RetryWaitScale = 0.5
	h.llm.err = errDown
	c := h.seedCharacter(t, nil, nil)
	h.opts.Variant = VariantSimple

	h.runner(t).RunRequest(context.Background(), request("c1", c.ID))

	assert.Equal(t, []time.Duration{2500 * time.Millisecond, 2500 * time.Millisecond}, h.waits)
}

func TestNewRunnerChecksDependencies(t *testing.T) {
	_, err := NewRunner(Deps{}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "characters")

	h := newHarness(t)
	h.deps.TTS = nil
	_, err = NewRunner(h.deps, h.opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tts")
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantVoice, v)

	v, err = ParseVariant(" Status ")
	require.NoError(t, err)
	assert.Equal(t, VariantStatus, v)

	_, err = ParseVariant("fancy")
	assert.Error(t, err)
}
