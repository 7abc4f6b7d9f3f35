package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"PostcardAgent/internal/models"
	"PostcardAgent/internal/store"
	"PostcardAgent/pkg/llm"
	"PostcardAgent/pkg/tts"
	"PostcardAgent/pkg/util"

	"github.com/stretchr/testify/require"
)

var errDown = errors.New("service unavailable")

type fakeLLM struct {
	reply   string
	err     error
	panics  bool
	calls   int
	lastReq llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.calls++
	f.lastReq = req
	if f.panics {
		panic("llm exploded")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeTTS struct {
	mu         sync.Mutex
	events     []string
	synthRefs  []string
	trainReqs  []tts.TrainRequest
	trainErr   error
	trainedID  string
	synthFails int // 前 N 次合成失败；-1 表示一直失败
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, voiceRef string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "synthesize")
	f.synthRefs = append(f.synthRefs, voiceRef)
	if f.synthFails != 0 {
		if f.synthFails > 0 {
			f.synthFails--
		}
		return nil, errDown
	}
	return []byte("RIFF-audio"), nil
}

func (f *fakeTTS) Train(ctx context.Context, req tts.TrainRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "train")
	f.trainReqs = append(f.trainReqs, req)
	if f.trainErr != nil {
		return "", f.trainErr
	}
	return f.trainedID, nil
}

func (f *fakeTTS) Format() string { return "wav" }

const objectBase = "http://minio:9000/voices-bucket/"

type memObjects struct {
	objects  map[string][]byte
	writeErr error
}

func newMemObjects() *memObjects { return &memObjects{objects: map[string][]byte{}} }

func (m *memObjects) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, 0, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *memObjects) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memObjects) PublicURL(key string) string { return objectBase + key }

type fakeSamples struct {
	urls []string
	data []byte
	err  error
}

func (f *fakeSamples) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

// failingRecords 包装真实存储，按需注入写入失败
type failingRecords struct {
	RecordStore
	insertErr error
}

func (f *failingRecords) InsertPostcard(ctx context.Context, conversationID string, userID, characterID uint, kind models.PostcardKind, content string) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	return f.RecordStore.InsertPostcard(ctx, conversationID, userID, characterID, kind, content)
}

type harness struct {
	store   *store.Store
	llm     *fakeLLM
	tts     *fakeTTS
	objects *memObjects
	samples *fakeSamples
	waits   []time.Duration
	deps    Deps
	opts    Options
}

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := util.InitDatabase("sqlite", "file::memory:")
	require.NoError(t, err)
	st := store.New(db)
	require.NoError(t, st.AutoMigrate())
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	h := &harness{
		store:   st,
		llm:     &fakeLLM{reply: "见字如面，愿你安好。"},
		tts:     &fakeTTS{trainedID: "voice-trained"},
		objects: newMemObjects(),
		samples: &fakeSamples{data: []byte("sample-wav")},
	}
	h.deps = Deps{
		Characters: st,
		Records:    st,
		LLM:        h.llm,
		TTS:        h.tts,
		Objects:    h.objects,
		Samples:    h.samples,
	}
	h.opts = Options{
		Variant: VariantVoice,
		Model:   "test-model",
		Now:     func() time.Time { return fixedNow },
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.waits = append(h.waits, d)
			return nil
		},
	}
	return h
}

func (h *harness) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(h.deps, h.opts)
	require.NoError(t, err)
	return r
}

func (h *harness) seedCharacter(t *testing.T, voiceID, voiceURL *string) *models.Character {
	t.Helper()
	c := &models.Character{
		Name:         "大大怪将军",
		Description:  "来自灰心星球的将军",
		UserRoleName: "小小怪",
		UserRoleDesc: "在地球打拼的战士",
		VoiceID:      voiceID,
		VoiceURL:     voiceURL,
	}
	require.NoError(t, h.store.DB().Create(c).Error)
	return c
}

func (h *harness) postcards(t *testing.T, conversationID string) []models.Postcard {
	t.Helper()
	cards, err := h.store.ListPostcards(context.Background(), conversationID)
	require.NoError(t, err)
	return cards
}

func strPtr(s string) *string { return &s }

func request(conversationID string, characterID uint) InboundRequest {
	return InboundRequest{ConversationID: conversationID, UserID: 1, CharacterID: characterID, UserMessage: "hello"}
}
