// Package toolexecutor registers and executes structured tools for agents.
//
// Invariants:
// - Tool names are unique; re-registering a name replaces the definition.
// - Parameters are schema-validated before the handler runs.
// - A denied tool never reaches its handler.
// - Every execution is bounded by a timeout and returns a ToolResult, never a panic or a Go error.
//
// Usage:
//
//	exec := toolexecutor.New()
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
//	result := exec.Execute(ctx, "echo", map[string]interface{}{"text": "hi"}, nil)
package toolexecutor
