package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerTools(srv *server.MCPServer, svc *Service) {
	registerListTodosTool(srv, svc)
	registerAddTodoTool(srv, svc)
	registerIDTool(srv, "toggle_todo", "Toggle a todo item's completed flag.", svc.ToggleTodo)
	registerDeleteTodoTool(srv, svc)
	registerListTasksTool(srv, svc)
	registerCreateTaskTool(srv, svc)
	registerIDTool(srv, "start_task", "Start or resume a timer task, pausing whichever task is running.", svc.StartTask)
	registerIDTool(srv, "pause_task", "Pause a running timer task.", svc.PauseTask)
	registerMemoTools(srv, svc)
	registerListChatsTool(srv, svc)
	registerCatalogTools(srv, svc)
	registerSyncTool(srv, svc)
}

func registerListTodosTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"list_todos",
		mcp.WithDescription("List todo items, including completed ones."),
	)
	srv.AddTool(tool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		items, err := svc.Todos(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{"items": items, "count": len(items)})
	})
}

func registerAddTodoTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"add_todo",
		mcp.WithDescription("Add a todo item."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text of the item."),
		),
		mcp.WithString("group",
			mcp.Description("Group to file the item under. Defaults to \"default\"."),
		),
	)
	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Text  string `json:"text"`
			Group string `json:"group"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		item, err := svc.AddTodo(ctx, args.Text, args.Group)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(item)
	})
}

func registerDeleteTodoTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"delete_todo",
		mcp.WithDescription("Delete a todo item."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Item identifier to delete."),
		),
	)
	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := svc.DeleteTodo(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]string{"deleted": id})
	})
}

// registerIDTool adds a tool that takes a single id argument.
func registerIDTool[T any](srv *server.MCPServer, name, description string, fn func(context.Context, string) (T, error)) {
	tool := mcp.NewTool(
		name,
		mcp.WithDescription(description),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Identifier of the item."),
		),
	)
	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := fn(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(out)
	})
}

func registerListTasksTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"list_tasks",
		mcp.WithDescription("List today's timer tasks with elapsed seconds."),
	)
	srv.AddTool(tool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := svc.Tasks(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{"tasks": tasks, "count": len(tasks)})
	})
}

func registerCreateTaskTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"create_task",
		mcp.WithDescription("Create a timer task and start it. Any running task is stopped first."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Task name."),
		),
		mcp.WithString("categoryPath",
			mcp.Description("Slash separated category path such as Work/Deep."),
		),
		mcp.WithArray("tags",
			mcp.Description("Instance tag names."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("parentId",
			mcp.Description("Parent task id for a child task."),
		),
		mcp.WithNumber("initialTime",
			mcp.Description("Seconds already spent on the task."),
		),
		mcp.WithString("date",
			mcp.Description("Day the task belongs to, YYYY-MM-DD. Defaults to today."),
		),
	)
	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Name         string   `json:"name"`
			CategoryPath string   `json:"categoryPath"`
			Tags         []string `json:"tags"`
			ParentID     string   `json:"parentId"`
			InitialTime  float64  `json:"initialTime"`
			Date         string   `json:"date"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		task, err := svc.CreateTask(ctx, TaskOptions{
			Name:         args.Name,
			CategoryPath: args.CategoryPath,
			Tags:         args.Tags,
			ParentID:     args.ParentID,
			InitialTime:  int64(args.InitialTime),
			Date:         args.Date,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(task)
	})
}

func registerMemoTools(srv *server.MCPServer, svc *Service) {
	get := mcp.NewTool(
		"get_memo",
		mcp.WithDescription("Read the memo."),
	)
	srv.AddTool(get, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doc, err := svc.Memo(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(doc)
	})

	set := mcp.NewTool(
		"set_memo",
		mcp.WithDescription("Replace the memo content and save it."),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("New memo text."),
		),
	)
	srv.AddTool(set, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := request.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		doc, err := svc.SetMemo(ctx, content)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(doc)
	})
}

func registerListChatsTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"list_chats",
		mcp.WithDescription("List AI chat sessions."),
	)
	srv.AddTool(tool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessions, err := svc.Chats(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{"sessions": sessions, "count": len(sessions)})
	})
}

func registerCatalogTools(srv *server.MCPServer, svc *Service) {
	categories := mcp.NewTool(
		"list_categories",
		mcp.WithDescription("List category paths usable as a task categoryPath."),
	)
	srv.AddTool(categories, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		paths, err := svc.Categories(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{"paths": paths})
	})

	tags := mcp.NewTool(
		"list_tags",
		mcp.WithDescription("List instance tags, optionally filtered."),
		mcp.WithString("query",
			mcp.Description("Case-insensitive substring to match tag names."),
		),
	)
	srv.AddTool(tags, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := svc.Tags(ctx, request.GetString("query", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{"tags": out})
	})
}

func registerSyncTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"sync",
		mcp.WithDescription("Revalidate every widget against the server."),
	)
	srv.AddTool(tool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := svc.Sync(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{"results": out})
	})
}

func toJSONResult(data any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return result, nil
}
