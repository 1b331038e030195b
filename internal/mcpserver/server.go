package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all marketplace tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("meraki", version)
	h := NewHandlers(NewMerakiClient(cfg))

	s.AddTool(ToolCheckBalance, h.HandleCheckBalance)
	s.AddTool(ToolSearchProducts, h.HandleSearchProducts)
	s.AddTool(ToolProposeTrade, h.HandleProposeTrade)
	s.AddTool(ToolConfirmTrade, h.HandleConfirmTrade)
	s.AddTool(ToolAcceptTrade, h.HandleAcceptTrade)
	s.AddTool(ToolCancelTrade, h.HandleCancelTrade)
	s.AddTool(ToolListTradeOffers, h.HandleListTradeOffers)
	s.AddTool(ToolGetTransaction, h.HandleGetTransaction)

	return s
}
