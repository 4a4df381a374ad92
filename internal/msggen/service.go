// Package msggen turns a calendar event plus an AI rule set into a
// ready-to-send Turkish message via a chat completion model and stores
// the result in the user's generatedMessages collection.
package msggen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"notlarim/internal/model"
	"notlarim/pkg/logx"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7

	// fallbackContent is stored when the model returns no choices.
	fallbackContent = "Mesaj üretilemedi."
)

var ErrNoAPIKey = errors.New("openai api key not configured")

type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
	}
	return c
}

// Store is the slice of the document store message generation needs.
type Store interface {
	Event(ctx context.Context, userID, eventID string) (*model.CalendarEvent, error)
	RuleSet(ctx context.Context, userID, ruleSetID string) (*model.AIRuleSet, error)
	SaveGeneratedMessage(ctx context.Context, msg *model.GeneratedMessage) error
}

// completionClient is the part of the OpenAI client we call. Kept as
// an interface so tests can stub the model.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Request struct {
	UserID         string
	EventID        string
	RuleSetID      string
	AdditionalNote string
	MessageType    string // kısa | orta | uzun; empty = rule set default
}

type Result struct {
	MessageID string
	Content   string
}

type Service struct {
	cfg    Config
	store  Store
	client completionClient
	log    logx.Logger
}

func New(cfg Config, st Store, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	s := &Service{cfg: cfg, store: st, log: log}
	if strings.TrimSpace(cfg.APIKey) != "" {
		s.client = openai.NewClient(cfg.APIKey)
	}
	return s
}

// Generate builds the prompt, calls the model and persists the result.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if s.client == nil {
		return nil, ErrNoAPIKey
	}

	ev, err := s.store.Event(ctx, req.UserID, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	rs, err := s.store.RuleSet(ctx, req.UserID, req.RuleSetID)
	if err != nil {
		return nil, fmt.Errorf("load rule set: %w", err)
	}

	prompt := buildPrompt(ev, rs, req.AdditionalNote, req.MessageType)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	content := fallbackContent
	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		content = resp.Choices[0].Message.Content
	}

	now := time.Now().UTC()
	msg := &model.GeneratedMessage{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Title:         ev.Title + " - Mesaj",
		Content:       content,
		SourceEventID: req.EventID,
		RuleSetID:     req.RuleSetID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.SaveGeneratedMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	s.log.Info("message generated",
		logx.String("user", req.UserID),
		logx.String("event", req.EventID),
		logx.String("rule_set", req.RuleSetID),
		logx.Int("content_len", len(content)))
	return &Result{MessageID: msg.ID, Content: content}, nil
}
