package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	globalConfig "github.com/AzielCF/az-crm/config"
	"github.com/AzielCF/az-crm/ui/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the CRM MCP server using SSE",
	Long:  `Start a CRM MCP (Model Context Protocol) server using Server-Sent Events (SSE) transport. This allows external AI agents to inspect conversations, search the knowledge base and open tickets through a standardized protocol.`,
	Run:   mcpServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&globalConfig.McpPort, "port", "8080", "Port for the SSE MCP server")
	mcpCmd.Flags().StringVar(&globalConfig.McpHost, "host", "localhost", "Host for the SSE MCP server")
}

func mcpServer(_ *cobra.Command, _ []string) {
	// Create MCP server with capabilities
	mcpServer := server.NewMCPServer(
		"Az-CRM MCP Server",
		globalConfig.AppVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
	)

	// Add the CRM query and ticket tools
	queryHandler := mcp.InitMcpQuery(chatUsecase, ticketUsecase, knowledgeUsecase)
	queryHandler.AddQueryTools(mcpServer)

	// Create SSE server
	sseServer := server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(fmt.Sprintf("http://%s:%s", globalConfig.McpHost, globalConfig.McpPort)),
		server.WithKeepAlive(true),
	)

	// Start the SSE server
	addr := fmt.Sprintf("%s:%s", globalConfig.McpHost, globalConfig.McpPort)
	logrus.Printf("Starting CRM MCP SSE server on %s", addr)
	logrus.Printf("SSE endpoint: http://%s:%s/sse", globalConfig.McpHost, globalConfig.McpPort)
	logrus.Printf("Message endpoint: http://%s:%s/message", globalConfig.McpHost, globalConfig.McpPort)

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[MCP] Reception of termination signal, shutting down gracefully...")
		StopApp()
		os.Exit(0)
	}()

	if err := sseServer.Start(addr); err != nil {
		logrus.Fatalf("Failed to start SSE server: %v", err)
	}
}
