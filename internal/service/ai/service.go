package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"admindash/internal/config"
	"admindash/internal/models"
)

// ChatModel is the part of an eino chat model the assistant calls.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

const DefaultSystemPrompt = "You are a helpful assistant that specializes with the user management and integrates AWS tools to help with tasks.\n" +
	"When the user asks you to perform an operation, answer normally and append exactly one fenced block:\n" +
	"```json\n{\"action\": \"<name>\", \"parameters\": {...}}\n```\n" +
	"Supported actions: sendEmail {to, subject, body}, listUsers {}, getUser {id}, " +
	"createUser {name, email, phone}, updateUser {id, name?, email?, phone?}, deleteUser {id}.\n" +
	"Omit the block when no operation is needed."

// NewChatModel builds the eino model for a configured provider. openai and
// openrouter both speak the OpenAI chat completions protocol.
func NewChatModel(ctx context.Context, provider string, provCfg config.ProviderConfig, modelName string) (ChatModel, error) {
	if modelName == "" {
		modelName = provCfg.Model
	}
	if modelName == "" {
		return nil, fmt.Errorf("model for provider %s not configured", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai", "openrouter":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}

// Assistant turns a dashboard chat message into a single completion call.
type Assistant struct {
	model        ChatModel
	systemPrompt string
	historyLimit int
	timeout      time.Duration
	logger       *zap.Logger
}

// NewAssistant wires a chat model with the prompt settings from config.
func NewAssistant(chatModel ChatModel, cfg config.AssistantConfig, timeout time.Duration, logger *zap.Logger) *Assistant {
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = config.DefaultHistoryLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		model:        chatModel,
		systemPrompt: prompt,
		historyLimit: limit,
		timeout:      timeout,
		logger:       logger,
	}
}

// Request is one chat exchange. UserData is forwarded verbatim as context.
type Request struct {
	Sample           string
	UserData         json.RawMessage
	PastUserMessages []string
}

// Complete sends the prompt and returns the raw model reply.
func (a *Assistant) Complete(ctx context.Context, req Request) (*schema.Message, error) {
	if strings.TrimSpace(req.Sample) == "" {
		return nil, errors.New("sample is required")
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := a.model.Generate(ctx, convertTurns(a.buildTurns(req)))
	if err != nil {
		return nil, fmt.Errorf("generate completion: %w", err)
	}
	if resp == nil {
		return nil, errors.New("empty completion")
	}
	a.logger.Debug("completion received",
		zap.Duration("latency", time.Since(start)),
		zap.Int("content_len", len(resp.Content)))
	return resp, nil
}

func (a *Assistant) buildTurns(req Request) []models.ChatTurn {
	turns := make([]models.ChatTurn, 0, a.historyLimit+3)
	turns = append(turns, models.ChatTurn{Role: models.RoleSystem, Content: a.systemPrompt})
	if data := strings.TrimSpace(string(req.UserData)); data != "" && data != "null" {
		turns = append(turns, models.ChatTurn{
			Role:    models.RoleSystem,
			Content: "Current user records (JSON):\n" + data,
		})
	}
	history := req.PastUserMessages
	if len(history) > a.historyLimit {
		history = history[len(history)-a.historyLimit:]
	}
	for _, msg := range history {
		if strings.TrimSpace(msg) == "" {
			continue
		}
		turns = append(turns, models.ChatTurn{Role: models.RoleUser, Content: msg})
	}
	turns = append(turns, models.ChatTurn{Role: models.RoleUser, Content: req.Sample})
	return turns
}

func convertTurns(turns []models.ChatTurn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		var role schema.RoleType
		switch turn.Role {
		case models.RoleUser:
			role = schema.User
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: turn.Content,
		})
	}
	return messages
}
