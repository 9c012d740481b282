package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"turbo-umbrella/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ChatClient abstracts the OpenAI-compatible chat completions API for
// testability. DeepSeek exposes the same wire protocol.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type openaiClient struct {
	client openai.Client
}

// NewDeepSeekClient creates a ChatClient pointed at an OpenAI-compatible
// endpoint such as DeepSeek's.
func NewDeepSeekClient(apiKey, baseURL string) ChatClient {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

// Completer runs one-shot prompt/response exchanges against a chat model and
// decodes the reply's embedded JSON object.
type Completer struct {
	chat    ChatClient
	model   string
	timeout time.Duration
	tracer  trace.Tracer
}

func NewCompleter(chat ChatClient, model string, timeout time.Duration, tracer trace.Tracer) *Completer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Completer{chat: chat, model: model, timeout: timeout, tracer: tracer}
}

// CompleteJSON sends a system/user prompt pair and unmarshals the first JSON
// object found in the reply into out. A deadline overrun maps to
// ErrAnalysisTimeout and any decode failure to ErrLLMParse.
func (c *Completer) CompleteJSON(ctx context.Context, system, user string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "llm.complete-json")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	completion, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return fmt.Errorf("%w: %v", domain.ErrAnalysisTimeout, err)
		}
		return fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return fmt.Errorf("%w: no choices in reply", domain.ErrLLMParse)
	}

	reply := completion.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))

	extracted, err := ExtractJSON(reply)
	if err != nil {
		return fmt.Errorf("%w: no JSON object in reply", domain.ErrLLMParse)
	}
	if err := json.Unmarshal([]byte(extracted), out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLLMParse, err)
	}
	return nil
}
