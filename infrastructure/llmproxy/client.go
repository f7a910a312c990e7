package llmproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/pipeline"
	pkgError "github.com/AzielCF/az-crm/pkg/error"
)

const (
	defaultTimeout   = 300 * time.Second
	maxResponseBytes = 4 << 20
)

// --- WIRE TYPES (OpenAI-compatible) ---

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireTool struct {
	Type     string         `json:"type"`
	Function wireToolSchema `json:"function"`
}

type chatPayload struct {
	Messages         []wireMessage      `json:"messages"`
	Files            []pipeline.FileRef `json:"files,omitempty"`
	Category         string             `json:"category,omitempty"`
	NameUser         string             `json:"nameUser,omitempty"`
	Temperature      float64            `json:"temperature"`
	OrganizationID   string             `json:"organization_id,omitempty"`
	TicketCategories []string           `json:"ticket_categories,omitempty"`
	TicketID         string             `json:"ticket_id,omitempty"`
	Tools            []wireTool         `json:"tools,omitempty"`
	ToolChoice       string             `json:"tool_choice,omitempty"`
	Model            string             `json:"model,omitempty"`
}

type chatResult struct {
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Metadata *struct {
		IsError bool   `json:"is_error,omitempty"`
		Detail  string `json:"detail,omitempty"`
	} `json:"metadata,omitempty"`
}

type rerankPayload struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// --- CLIENT ---

// Client habla con el proxy LLM de la plataforma. El proxy enruta por
// categoría hacia el modelo real y devuelve respuestas compatibles con
// OpenAI, más un bloque metadata propio.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient crea el cliente con el timeout total configurado.
func NewClient(cfg coreconfig.LLMConfig) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.ProxyURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Chat implementa pipeline.ILLMClient contra {base}/v1/chat/completions.
func (c *Client) Chat(ctx context.Context, req pipeline.ChatRequest) (*pipeline.ChatResponse, error) {
	payload := chatPayload{
		Messages:         encodeMessages(req.Messages),
		Files:            req.Files,
		Category:         req.Category,
		NameUser:         req.NameUser,
		Temperature:      req.Temperature,
		OrganizationID:   req.OrganizationID,
		TicketCategories: req.TicketCategories,
		TicketID:         req.TicketID,
		ToolChoice:       req.ToolChoice,
		Model:            req.Model,
	}
	for _, tool := range req.Tools {
		payload.Tools = append(payload.Tools, wireTool{
			Type: "function",
			Function: wireToolSchema{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	var result chatResult
	if err := c.jsonRequest(ctx, c.baseURL+"/v1/chat/completions", payload, &result); err != nil {
		return nil, err
	}

	if len(result.Choices) == 0 {
		return nil, pkgError.TransientUpstreamError{Message: "proxy returned no choices"}
	}

	choice := result.Choices[0].Message
	resp := &pipeline.ChatResponse{
		Text:      choice.Content,
		ToolCalls: decodeToolCalls(choice.ToolCalls),
	}
	if result.Metadata != nil {
		resp.IsError = result.Metadata.IsError
		resp.Detail = result.Metadata.Detail
	}
	if result.Usage != nil {
		resp.Usage = &pipeline.UsageStats{
			Model:            result.Model,
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		}
	}

	return resp, nil
}

// Rerank puntúa documents contra query vía {base}/v1/rerank.
// Devuelve un score por documento, en el orden de entrada.
func (c *Client) Rerank(ctx context.Context, model, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	payload := rerankPayload{Model: model, Query: query, Documents: documents}

	var result rerankResult
	if err := c.jsonRequest(ctx, c.baseURL+"/v1/rerank", payload, &result); err != nil {
		return nil, err
	}

	scores := make([]float64, len(documents))
	for _, r := range result.Results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.RelevanceScore
		}
	}
	return scores, nil
}

// Ping verifica que el proxy responda (health check).
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("proxy health returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) jsonRequest(ctx context.Context, url string, body interface{}, dest interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts y errores de conexión cuentan como fallo transitorio
		return pkgError.TransientUpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 500 {
		logrus.Warnf("[LLMProxy] %s failed: status=%d body=%s", url, resp.StatusCode, truncate(data, 300))
		return pkgError.TransientUpstreamError{Message: "proxy request failed", Status: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		logrus.Warnf("[LLMProxy] %s rejected: status=%d body=%s", url, resp.StatusCode, truncate(data, 300))
		return pkgError.PermanentUpstreamError{Message: "proxy rejected request", Status: resp.StatusCode}
	}

	if dest != nil {
		if err := json.Unmarshal(data, dest); err != nil {
			return pkgError.TransientUpstreamError{Message: "malformed proxy response: " + err.Error()}
		}
	}
	return nil
}

// --- ENCODING HELPERS ---

// encodeMessages traduce el historial agnóstico al formato de mensajes de
// OpenAI. Las respuestas de herramientas se expanden en mensajes "tool".
func encodeMessages(turns []pipeline.ChatTurn) []wireMessage {
	out := make([]wireMessage, 0, len(turns))
	for _, turn := range turns {
		msg := wireMessage{Role: turn.Role, Content: turn.Text}
		for _, call := range turn.ToolCalls {
			args, _ := json.Marshal(call.Args)
			msg.ToolCalls = append(msg.ToolCalls, wireToolCall{
				ID:   call.ID,
				Type: "function",
				Function: wireFunction{
					Name:      call.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, msg)

		for _, tr := range turn.ToolResponses {
			data, _ := json.Marshal(tr.Data)
			out = append(out, wireMessage{
				Role:       pipeline.RoleTool,
				Content:    string(data),
				ToolCallID: tr.ID,
				Name:       tr.Name,
			})
		}
	}
	return out
}

func decodeToolCalls(calls []wireToolCall) []pipeline.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]pipeline.ToolCall, 0, len(calls))
	for _, call := range calls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				logrus.Debugf("[LLMProxy] unparseable tool arguments for %s: %v", call.Function.Name, err)
			}
		}
		out = append(out, pipeline.ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: args,
		})
	}
	return out
}

func truncate(data []byte, limit int) string {
	if len(data) <= limit {
		return string(data)
	}
	return string(data[:limit]) + "..."
}
