package msggen

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"notlarim/internal/model"
	"notlarim/internal/store"
	"notlarim/pkg/logx"
)

type fakeStore struct {
	event   *model.CalendarEvent
	ruleSet *model.AIRuleSet
	saved   *model.GeneratedMessage
}

func (f *fakeStore) Event(_ context.Context, _, _ string) (*model.CalendarEvent, error) {
	if f.event == nil {
		return nil, store.ErrNotFound
	}
	return f.event, nil
}

func (f *fakeStore) RuleSet(_ context.Context, _, _ string) (*model.AIRuleSet, error) {
	if f.ruleSet == nil {
		return nil, store.ErrNotFound
	}
	return f.ruleSet, nil
}

func (f *fakeStore) SaveGeneratedMessage(_ context.Context, msg *model.GeneratedMessage) error {
	f.saved = msg
	return nil
}

type fakeCompletion struct {
	content string
	err     error
	gotReq  openai.ChatCompletionRequest
}

func (f *fakeCompletion) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.gotReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func testService(st *fakeStore, client completionClient) *Service {
	s := New(Config{APIKey: "test"}, st, logx.Nop())
	s.client = client
	return s
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	st := &fakeStore{
		event:   &model.CalendarEvent{ID: "ev1", Title: "Doğum günü", StartAt: &start},
		ruleSet: &model.AIRuleSet{ID: "rs1", Name: "Samimi"},
	}
	client := &fakeCompletion{content: "Nice mutlu yıllara!"}

	res, err := testService(st, client).Generate(context.Background(), Request{
		UserID: "u1", EventID: "ev1", RuleSetID: "rs1",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != "Nice mutlu yıllara!" {
		t.Fatalf("content = %q", res.Content)
	}
	if st.saved == nil {
		t.Fatal("message not persisted")
	}
	if st.saved.Title != "Doğum günü - Mesaj" {
		t.Fatalf("saved title = %q", st.saved.Title)
	}
	if st.saved.SourceEventID != "ev1" || st.saved.RuleSetID != "rs1" {
		t.Fatalf("saved refs = %+v", st.saved)
	}
	if st.saved.ID == "" || res.MessageID != st.saved.ID {
		t.Fatalf("message id mismatch: %q vs %q", res.MessageID, st.saved.ID)
	}

	if client.gotReq.Model != "gpt-4o-mini" || client.gotReq.MaxTokens != 1000 {
		t.Fatalf("request = model %q, max_tokens %d", client.gotReq.Model, client.gotReq.MaxTokens)
	}
	if len(client.gotReq.Messages) != 2 || client.gotReq.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("messages = %+v", client.gotReq.Messages)
	}
}

func TestGenerateEmptyCompletionFallsBack(t *testing.T) {
	t.Parallel()

	st := &fakeStore{
		event:   &model.CalendarEvent{ID: "ev1", Title: "Kahve"},
		ruleSet: &model.AIRuleSet{ID: "rs1", Name: "Arkadaş"},
	}
	res, err := testService(st, &fakeCompletion{content: ""}).Generate(context.Background(), Request{
		UserID: "u1", EventID: "ev1", RuleSetID: "rs1",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != fallbackContent {
		t.Fatalf("content = %q, want fallback", res.Content)
	}
}

func TestGenerateMissingDocuments(t *testing.T) {
	t.Parallel()

	_, err := testService(&fakeStore{}, &fakeCompletion{content: "x"}).Generate(context.Background(), Request{
		UserID: "u1", EventID: "missing", RuleSetID: "rs1",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGenerateWithoutAPIKey(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &fakeStore{}, logx.Nop())
	if _, err := s.Generate(context.Background(), Request{}); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}
}
