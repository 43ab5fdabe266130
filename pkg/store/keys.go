package store

// Well-known keys. The first dash-separated segment is the owning widget's
// namespace.
const (
	KeyMemo         = "memo-content"
	KeyTodo         = "todo-items"
	KeyTodoUI       = "widget-todo-ui"
	KeyChat         = "ai-chat-sessions"
	KeyTimer        = "timer-tasks"
	KeyPendingTask  = "widget-pending-task"
	KeyCategories   = "category-cache-v1"
	KeyInstanceTags = "instance-tag-cache"
	KeySession      = "auth-session"
	KeyDeviceID     = "app-device-id"
)

// WidgetKeys are the keys cleared by a logout/reset flow. The device id
// identifies the install and survives logout.
var WidgetKeys = []string{
	KeyMemo,
	KeyTodo,
	KeyTodoUI,
	KeyChat,
	KeyTimer,
	KeyPendingTask,
	KeyCategories,
	KeyInstanceTags,
	KeySession,
}
