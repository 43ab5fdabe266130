package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerResources(srv *server.MCPServer, svc *Service) {
	registerResource(srv, "widgetsync://status", "Status",
		"Sync state of every widget.",
		func(ctx context.Context) (any, error) {
			st, err := svc.Status(ctx)
			return map[string]any{"widgets": st}, err
		})
	registerResource(srv, "widgetsync://todo", "Todo",
		"All todo items.",
		func(ctx context.Context) (any, error) {
			items, err := svc.Todos(ctx)
			return map[string]any{"items": items, "count": len(items)}, err
		})
	registerResource(srv, "widgetsync://timer", "Timer",
		"Today's timer tasks.",
		func(ctx context.Context) (any, error) {
			tasks, err := svc.Tasks(ctx)
			return map[string]any{"tasks": tasks, "count": len(tasks)}, err
		})
	registerResource(srv, "widgetsync://memo", "Memo",
		"The memo document.",
		func(ctx context.Context) (any, error) {
			return svc.Memo(ctx)
		})
}

func registerResource(srv *server.MCPServer, uri, name, description string, load func(context.Context) (any, error)) {
	resource := mcp.NewResource(
		uri,
		name,
		mcp.WithResourceDescription(description),
		mcp.WithMIMEType("application/json"),
	)

	srv.AddResource(resource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		payload, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResourceJSON(request.Params.URI, payload)
	})
}

func encodeResourceJSON(uri string, payload any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
