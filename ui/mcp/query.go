package mcp

import (
	"context"
	"fmt"

	domainChat "github.com/AzielCF/az-crm/domains/chat"
	"github.com/AzielCF/az-crm/domains/crm"
	domainKnowledge "github.com/AzielCF/az-crm/domains/knowledge"
	domainTicket "github.com/AzielCF/az-crm/domains/ticket"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type QueryHandler struct {
	chatService      domainChat.IChatUsecase
	ticketService    domainTicket.ITicketUsecase
	knowledgeService domainKnowledge.IKnowledgeUsecase
}

func InitMcpQuery(chatService domainChat.IChatUsecase, ticketService domainTicket.ITicketUsecase, knowledgeService domainKnowledge.IKnowledgeUsecase) *QueryHandler {
	return &QueryHandler{
		chatService:      chatService,
		ticketService:    ticketService,
		knowledgeService: knowledgeService,
	}
}

func (h *QueryHandler) AddQueryTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolListChats(), h.handleListChats)
	mcpServer.AddTool(h.toolGetChatMessages(), h.handleGetChatMessages)
	mcpServer.AddTool(h.toolSearchKnowledge(), h.handleSearchKnowledge)
	mcpServer.AddTool(h.toolCreateTicket(), h.handleCreateTicket)
}

func (h *QueryHandler) toolListChats() mcp.Tool {
	return mcp.NewTool(
		"crm_list_chats",
		mcp.WithDescription("List the conversations of a tenant, newest activity first, optionally filtered by status."),
		mcp.WithTitleAnnotation("List Chats"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("tenant_id",
			mcp.Description("The tenant whose chats should be listed."),
			mcp.Required(),
		),
		mcp.WithString("status",
			mcp.Description("Optional chat status filter: open, pending, resolved or archived."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of chats to return (default 20)."),
		),
	)
}

func (h *QueryHandler) handleListChats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := request.RequireString("tenant_id")
	if err != nil {
		return nil, err
	}

	filter := crm.ChatFilter{Limit: request.GetInt("limit", 20)}
	if status := request.GetString("status", ""); status != "" {
		chatStatus := crm.ChatStatus(status)
		filter.Status = &chatStatus
	}

	resp, err := h.chatService.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Found %d chats", len(resp.Chats))
	return mcp.NewToolResultStructured(resp, fallback), nil
}

func (h *QueryHandler) toolGetChatMessages() mcp.Tool {
	return mcp.NewTool(
		"crm_get_chat_messages",
		mcp.WithDescription("Retrieve the recent messages of a chat in chronological order."),
		mcp.WithTitleAnnotation("Get Chat Messages"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("tenant_id",
			mcp.Description("The tenant that owns the chat."),
			mcp.Required(),
		),
		mcp.WithString("chat_id",
			mcp.Description("The chat whose messages should be fetched."),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return (default 50)."),
		),
	)
}

func (h *QueryHandler) handleGetChatMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := request.RequireString("tenant_id")
	if err != nil {
		return nil, err
	}

	chatID, err := request.RequireString("chat_id")
	if err != nil {
		return nil, err
	}

	messages, err := h.chatService.ListMessages(ctx, tenantID, chatID, request.GetInt("limit", 50))
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Fetched %d messages from chat %s", len(messages), chatID)
	return mcp.NewToolResultStructured(messages, fallback), nil
}

func (h *QueryHandler) toolSearchKnowledge() mcp.Tool {
	return mcp.NewTool(
		"crm_search_knowledge",
		mcp.WithDescription("Search the tenant knowledge base and return the best matching document chunks with their scores."),
		mcp.WithTitleAnnotation("Search Knowledge Base"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("tenant_id",
			mcp.Description("The tenant whose knowledge base should be searched."),
			mcp.Required(),
		),
		mcp.WithString("query",
			mcp.Description("The natural language query to search for."),
			mcp.Required(),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of chunks to return (default 5)."),
		),
	)
}

func (h *QueryHandler) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := request.RequireString("tenant_id")
	if err != nil {
		return nil, err
	}

	query, err := request.RequireString("query")
	if err != nil {
		return nil, err
	}

	chunks, err := h.knowledgeService.SearchChunks(ctx, tenantID, query, request.GetInt("top_k", 5))
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Found %d knowledge chunks", len(chunks))
	return mcp.NewToolResultStructured(chunks, fallback), nil
}

func (h *QueryHandler) toolCreateTicket() mcp.Tool {
	return mcp.NewTool(
		"crm_create_ticket",
		mcp.WithDescription("Open a support ticket for a chat. Use when the conversation needs follow-up that a reply alone cannot resolve."),
		mcp.WithTitleAnnotation("Create Ticket"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("tenant_id",
			mcp.Description("The tenant that owns the chat."),
			mcp.Required(),
		),
		mcp.WithString("chat_id",
			mcp.Description("The chat the ticket belongs to."),
			mcp.Required(),
		),
		mcp.WithString("customer_id",
			mcp.Description("The customer the ticket is about."),
			mcp.Required(),
		),
		mcp.WithString("subject",
			mcp.Description("Short summary of the issue."),
			mcp.Required(),
		),
		mcp.WithString("description",
			mcp.Description("Optional longer description of the issue."),
		),
		mcp.WithString("priority",
			mcp.Description("Optional priority: low, medium, high or urgent (default medium)."),
		),
	)
}

func (h *QueryHandler) handleCreateTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := request.RequireString("tenant_id")
	if err != nil {
		return nil, err
	}

	chatID, err := request.RequireString("chat_id")
	if err != nil {
		return nil, err
	}

	customerID, err := request.RequireString("customer_id")
	if err != nil {
		return nil, err
	}

	subject, err := request.RequireString("subject")
	if err != nil {
		return nil, err
	}

	req := domainTicket.CreateTicketRequest{
		ChatID:      chatID,
		CustomerID:  customerID,
		Subject:     subject,
		Description: request.GetString("description", ""),
		Actor:       "mcp",
	}
	if priority := request.GetString("priority", ""); priority != "" {
		req.Priority = crm.TicketPriority(priority)
	}

	resp, err := h.ticketService.Create(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Ticket %s created with code %s", resp.ID, resp.Code)
	return mcp.NewToolResultStructured(resp, fallback), nil
}
