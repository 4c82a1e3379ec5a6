package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	coreconfig "github.com/re178/mega-facebook-autoposter/core/config"
	"github.com/re178/mega-facebook-autoposter/ui/mcp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the autoposter MCP server using SSE",
	Long: `Start an MCP (Model Context Protocol) server using Server-Sent Events (SSE) transport.
It exposes the operator controls as tools. Background loops are not run here;
items created through it are picked up by the process running "rest".`,
	Run: mcpServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("mcp-port", "", "Port for the SSE MCP server")
	mcpCmd.Flags().String("mcp-host", "", "Host for the SSE MCP server")
}

func mcpServer(cmd *cobra.Command, _ []string) {
	cfg := coreconfig.Global
	if port, _ := cmd.Flags().GetString("mcp-port"); port != "" {
		cfg.MCP.Port = port
	}
	if host, _ := cmd.Flags().GetString("mcp-host"); host != "" {
		cfg.MCP.Host = host
	}

	a, err := bootstrap(cmd.Context(), false)
	if err != nil {
		logrus.Fatalf("[MCP] Failed to start: %v", err)
	}

	mcpServer := server.NewMCPServer(
		"Facebook Autoposter MCP Server",
		cfg.App.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
	)

	controlHandler := mcp.InitMcpControl(a.control, a.location)
	controlHandler.AddControlTools(mcpServer)

	sseServer := server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(fmt.Sprintf("http://%s:%s", cfg.MCP.Host, cfg.MCP.Port)),
		server.WithKeepAlive(true),
	)

	addr := fmt.Sprintf("%s:%s", cfg.MCP.Host, cfg.MCP.Port)
	logrus.Printf("[MCP] Starting SSE server on %s", addr)
	logrus.Printf("[MCP] SSE endpoint: http://%s/sse", addr)
	logrus.Printf("[MCP] Message endpoint: http://%s/message", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[MCP] Reception of termination signal, shutting down gracefully...")
		a.Stop()
		os.Exit(0)
	}()

	if err := sseServer.Start(addr); err != nil {
		logrus.Fatalf("[MCP] Failed to start SSE server: %v", err)
	}
}
