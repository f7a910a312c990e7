package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/pipeline"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

const (
	// toolSeparator une servidor y herramienta en el nombre expuesto a la IA.
	toolSeparator = "__"

	listTimeout = 15 * time.Second
	callTimeout = 30 * time.Second

	idleSweepEvery = 5 * time.Minute
	idleMaxAge     = 10 * time.Minute
)

type clientEntry struct {
	client   *client.Client
	url      string
	apiKey   string
	lastUsed time.Time
}

// Executor implementa pipeline.IToolExecutor sobre servidores MCP remotos
// configurados por agente. Las conexiones se cachean por tenant y servidor
// y se cierran al quedar ociosas.
type Executor struct {
	clients sync.Map // tenantID|serverName -> *clientEntry
}

func NewExecutor() *Executor {
	e := &Executor{}
	go e.startIdleClientCleaner()
	return e
}

func (e *Executor) Tools(ctx context.Context, agent *crm.Agent) []pipeline.ToolDef {
	if agent == nil || len(agent.Settings.MCPServers) == 0 {
		return nil
	}

	var defs []pipeline.ToolDef
	for _, server := range agent.Settings.MCPServers {
		if strings.TrimSpace(server.URL) == "" || strings.TrimSpace(server.Name) == "" {
			continue
		}
		listCtx, cancel := context.WithTimeout(ctx, listTimeout)
		tools, err := e.listServerTools(listCtx, agent.TenantID, server)
		cancel()
		if err != nil {
			// Un servidor caído no bloquea las herramientas de los demás
			logrus.Warnf("[MCPTools] ListTools %s: %v", server.Name, err)
			e.drop(agent.TenantID, server.Name)
			continue
		}
		for _, t := range tools {
			defs = append(defs, pipeline.ToolDef{
				Name:        server.Name + toolSeparator + t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			})
		}
	}
	return defs
}

func (e *Executor) Execute(ctx context.Context, agent *crm.Agent, call pipeline.ToolCall) (resp pipeline.ToolResponse) {
	resp = pipeline.ToolResponse{ID: call.ID, Name: call.Name}
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[MCPTools] Panic executing %s: %v", call.Name, r)
			resp.Data = map[string]any{"error": fmt.Sprintf("tool panicked: %v", r)}
		}
	}()

	serverName, toolName, ok := strings.Cut(call.Name, toolSeparator)
	if !ok {
		resp.Data = map[string]any{"error": "unknown tool " + call.Name}
		return resp
	}
	server, found := findServer(agent, serverName)
	if !found {
		resp.Data = map[string]any{"error": "no MCP server named " + serverName}
		return resp
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	c, err := e.getOrConnect(callCtx, agent.TenantID, server)
	if err != nil {
		resp.Data = map[string]any{"error": err.Error()}
		return resp
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = call.Args

	res, err := c.CallTool(callCtx, req)
	if err != nil {
		// La conexión queda en duda; el próximo uso reconecta
		e.drop(agent.TenantID, server.Name)
		resp.Data = map[string]any{"error": err.Error()}
		return resp
	}

	text := joinTextContent(res.Content)
	if res.IsError {
		resp.Data = map[string]any{"error": text}
		return resp
	}
	resp.Data = text
	return resp
}

// Shutdown cierra todas las conexiones abiertas.
func (e *Executor) Shutdown() {
	logrus.Info("[MCPTools] Shutting down connections...")
	e.clients.Range(func(_, value any) bool {
		if entry, ok := value.(*clientEntry); ok {
			entry.client.Close()
		}
		return true
	})
}

// === Lógica interna de red ===

func (e *Executor) listServerTools(ctx context.Context, tenantID string, server crm.MCPServerConfig) ([]mcp.Tool, error) {
	c, err := e.getOrConnect(ctx, tenantID, server)
	if err != nil {
		return nil, err
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

func (e *Executor) getOrConnect(ctx context.Context, tenantID string, server crm.MCPServerConfig) (*client.Client, error) {
	key := tenantID + "|" + server.Name
	if val, ok := e.clients.Load(key); ok {
		entry := val.(*clientEntry)
		if entry.url == server.URL && entry.apiKey == server.APIKey {
			entry.lastUsed = time.Now()
			return entry.client, nil
		}
		entry.client.Close()
		e.clients.Delete(key)
	}

	mcpClient, err := e.connect(ctx, server)
	if err != nil {
		return nil, err
	}

	e.clients.Store(key, &clientEntry{
		client:   mcpClient,
		url:      server.URL,
		apiKey:   server.APIKey,
		lastUsed: time.Now(),
	})
	return mcpClient, nil
}

func (e *Executor) connect(ctx context.Context, server crm.MCPServerConfig) (*client.Client, error) {
	logrus.Infof("[MCPTools] Connecting to %s", server.Name)

	var opts []transport.StreamableHTTPCOption
	if server.APIKey != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + server.APIKey,
		}))
	}
	mcpClient, err := client.NewStreamableHttpClient(server.URL, opts...)
	if err != nil {
		return nil, err
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, err
	}
	if err := initializeClient(ctx, mcpClient); err != nil {
		mcpClient.Close()
		return nil, err
	}
	return mcpClient, nil
}

func initializeClient(ctx context.Context, c *client.Client) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "az-crm", Version: "1.0.0"}

	var initErr error
	for i := 0; i < 5; i++ {
		_, initErr = c.Initialize(ctx, req)
		if initErr == nil {
			return nil
		}
		if strings.Contains(strings.ToLower(initErr.Error()), "session") {
			time.Sleep(500 * time.Millisecond)
			continue
		}
		break
	}
	return initErr
}

func (e *Executor) drop(tenantID, serverName string) {
	if val, ok := e.clients.LoadAndDelete(tenantID + "|" + serverName); ok {
		if entry, ok := val.(*clientEntry); ok {
			entry.client.Close()
		}
	}
}

func (e *Executor) startIdleClientCleaner() {
	ticker := time.NewTicker(idleSweepEvery)
	for range ticker.C {
		now := time.Now()
		e.clients.Range(func(key, value any) bool {
			entry := value.(*clientEntry)
			if now.Sub(entry.lastUsed) > idleMaxAge {
				logrus.Infof("[MCPTools] Closing idle connection %v", key)
				entry.client.Close()
				e.clients.Delete(key)
			}
			return true
		})
	}
}

// === Helpers ===

func findServer(agent *crm.Agent, name string) (crm.MCPServerConfig, bool) {
	if agent == nil {
		return crm.MCPServerConfig{}, false
	}
	for _, server := range agent.Settings.MCPServers {
		if server.Name == name {
			return server, true
		}
	}
	return crm.MCPServerConfig{}, false
}

// schemaToMap normaliza el esquema de entrada vía un roundtrip JSON.
func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || len(out) == 0 {
		return map[string]any{"type": "object"}
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out
}

func joinTextContent(contents []mcp.Content) string {
	var parts []string
	for _, content := range contents {
		if textContent, ok := content.(mcp.TextContent); ok {
			parts = append(parts, textContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}
