package pipeline

import (
	"context"

	"github.com/AzielCF/az-crm/domains/crm"
)

// Roles estándar de una conversación con el proxy LLM.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall representa una intención de la IA de llamar a una herramienta
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResponse representa el resultado de la ejecución de una herramienta
type ToolResponse struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Data any    `json:"data"`
}

// ChatTurn represents a single turn in a conversation
type ChatTurn struct {
	Role          string         `json:"role"`
	Text          string         `json:"text,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`
	ToolResponses []ToolResponse `json:"tool_responses,omitempty"`
}

// FileRef referencia un adjunto que acompaña a la petición.
// URL puede ser una ruta local cacheada o una URL remota accesible por el proxy.
type FileRef struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ToolDef describe una herramienta expuesta a la IA (parámetros en JSON Schema)
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatRequest es una petición agnóstica de chat hacia el proxy LLM
type ChatRequest struct {
	Messages       []ChatTurn
	Files          []FileRef
	Category       string
	NameUser       string
	Temperature    float64
	OrganizationID string
	// TicketCategories acota las categorías válidas cuando la llamada decide
	// sobre tickets; TicketID da contexto cuando ya existe uno activo.
	TicketCategories []string
	TicketID         string
	Tools            []ToolDef
	ToolChoice       string
	Model            string
}

// UsageStats contiene estadísticas de tokens de una respuesta
type UsageStats struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// ChatResponse es la respuesta agnóstica del proxy LLM
type ChatResponse struct {
	Text      string
	ToolCalls []ToolCall
	// IsError refleja metadata.is_error del proxy: el texto es un mensaje de
	// fallo del upstream y no debe facturarse como uso real.
	IsError bool
	Detail  string
	Usage   *UsageStats
}

// ILLMClient es la interfaz delgada que debe implementar el cliente del proxy
type ILLMClient interface {
	// Chat envía el contexto y herramientas a la IA y devuelve texto o llamadas a herramientas
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// IToolExecutor resuelve las herramientas MCP configuradas por agente y las ejecuta.
// Execute nunca propaga pánico: un fallo de herramienta se devuelve como Data de error
// para que la IA pueda continuar el bucle.
type IToolExecutor interface {
	Tools(ctx context.Context, agent *crm.Agent) []ToolDef
	Execute(ctx context.Context, agent *crm.Agent, call ToolCall) ToolResponse
}

// IPipelineUsecase orquesta la generación de respuestas de IA para un chat
type IPipelineUsecase interface {
	// ProcessChat genera y despacha la respuesta de IA para el mensaje
	// indicado. Es el punto de entrada que dispara el worker de debounce;
	// el tenant se resuelve desde el propio chat.
	ProcessChat(ctx context.Context, chatID, messageID, priority string) error
}
