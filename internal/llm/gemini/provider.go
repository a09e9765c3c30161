package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/eliamaps/elia/internal/config"
	"github.com/eliamaps/elia/internal/domain"
	"github.com/eliamaps/elia/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) AvailableModels() []string {
	return []string{
		"gemini-2.5-flash",
		"gemini-2.5-pro",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
	}
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.5-flash"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

// Complete sends the conversation window with the tool catalog and returns
// either final text or the model's tool calls.
func (p *Provider) Complete(ctx context.Context, req llm.Request, model string) (*llm.Response, error) {
	if !p.IsConfigured() {
		return nil, fmt.Errorf("gemini provider is not configured (missing API key)")
	}

	if model == "" {
		model = p.DefaultModel()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	generativeModel := client.GenerativeModel(model)
	var temperature float32 = 0.2
	generativeModel.Temperature = &temperature
	generativeModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemPrompt)},
	}
	if len(req.Tools) > 0 {
		generativeModel.Tools = []*genai.Tool{{
			FunctionDeclarations: toFunctionDeclarations(req.Tools),
		}}
	}

	contents := toContents(req.History)
	if len(contents) == 0 {
		return nil, fmt.Errorf("empty conversation window")
	}

	chat := generativeModel.StartChat()
	chat.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	start := time.Now()
	resp, err := chat.SendMessage(ctx, last.Parts...)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %v", domain.ErrUpstreamUnavailable, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: gemini returned an empty response", domain.ErrUpstreamUnavailable)
	}

	out := &llm.Response{
		Model:     model,
		LatencyMs: latency,
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			out.Text += string(v)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				Name: v.Name,
				Args: v.Args,
			})
		}
	}

	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	return out, nil
}

func toFunctionDeclarations(tools []llm.ToolDefinition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		properties := make(map[string]*genai.Schema, len(t.Parameters))
		var required []string
		for name, param := range t.Parameters {
			properties[name] = &genai.Schema{
				Type:        toSchemaType(param.Type),
				Description: param.Description,
				Enum:        param.Enum,
			}
			if param.Required {
				required = append(required, name)
			}
		}

		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			},
		})
	}
	return decls
}

func toSchemaType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}

// toContents converts the stored window into Gemini chat contents. Tool
// messages carry both the call arguments and the result (see service layer),
// so each run of tool messages is replayed as one model function-call turn
// followed by one function-response turn, which is the shape the API expects.
// A window that starts mid-turn is trimmed forward to the first user message,
// since Gemini rejects histories opening with a model or function turn.
func toContents(history []domain.Message) []*genai.Content {
	var contents []*genai.Content

	start := 0
	for start < len(history) && history[start].Role != domain.RoleUser {
		start++
	}

	for i := start; i < len(history); i++ {
		msg := history[i]
		switch msg.Role {
		case domain.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		case domain.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		case domain.RoleTool:
			var calls, responses []genai.Part
			for ; i < len(history) && history[i].Role == domain.RoleTool; i++ {
				m := history[i]
				calls = append(calls, genai.FunctionCall{
					Name: m.ToolName,
					Args: payloadMap(m.ToolPayload, "args"),
				})
				responses = append(responses, genai.FunctionResponse{
					Name:     m.ToolName,
					Response: payloadMap(m.ToolPayload, "result"),
				})
			}
			i--
			contents = append(contents,
				&genai.Content{Role: "model", Parts: calls},
				&genai.Content{Role: "function", Parts: responses},
			)
		}
	}

	return contents
}

func payloadMap(payload map[string]any, key string) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	if m, ok := payload[key].(map[string]any); ok {
		return m
	}
	if v, ok := payload[key]; ok {
		return map[string]any{"value": v}
	}
	return map[string]any{}
}
