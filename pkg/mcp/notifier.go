package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// Notifier pushes log notifications to the client session that issued the
// current tool call.
type Notifier struct {
	mcpServer *server.MCPServer
}

// NewNotifier creates a notifier bound to an MCP server.
func NewNotifier(mcpServer *server.MCPServer) *Notifier {
	return &Notifier{mcpServer: mcpServer}
}

// Notify sends payload as a notifications/message to the calling session.
// Best-effort: returns nil when the call has no session or it has gone away.
func (n *Notifier) Notify(ctx context.Context, payload map[string]any) error {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(session.SessionID(), "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		return nil
	}
	return err
}
