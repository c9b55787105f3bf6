package workitem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/harun/backlog-agent/pkg/toolexecutor"
)

// Tool names exposed to the completion backend.
const (
	ToolCreate  = "create_work_item"
	ToolUpdate  = "update_work_item"
	ToolAddLink = "add_work_item_link"
)

// DefaultCreatePriority is used when the caller does not choose a priority.
const DefaultCreatePriority = 2

// ToolRegistrar is the subset of the tool executor needed to register tools.
type ToolRegistrar interface {
	RegisterTool(def toolexecutor.ToolDefinition) error
}

// RegisterTools registers the create, update and link actions.
func RegisterTools(registrar ToolRegistrar, builder *Builder, mutator Mutator) error {
	if builder == nil || mutator == nil {
		return fmt.Errorf("builder and mutator are required")
	}

	actions := &actions{builder: builder, mutator: mutator}

	tools := []toolexecutor.ToolDefinition{
		{
			Name:        ToolCreate,
			Description: "Creates a new work item in Azure DevOps and returns its ID, revision and URL",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "work_item_type", Type: "string", Description: "The type of work item to create (e.g., Bug, Task, User Story)", Required: true},
				{Name: "title", Type: "string", Description: "The title of the work item", Required: true},
				{Name: "description", Type: "string", Description: "The description of the work item"},
				{Name: "priority", Type: "integer", Description: "Priority of the work item (1 is highest)", Default: DefaultCreatePriority},
				{Name: "assigned_to", Type: "string", Description: "Assigned to (email or display name)"},
			},
			Handler: actions.create,
		},
		{
			Name:        ToolUpdate,
			Description: "Updates fields of an existing work item. Requires the current revision; only non-empty fields are changed",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "id", Type: "integer", Description: "The work item ID", Required: true},
				{Name: "revision", Type: "integer", Description: "The revision returned by the last create or update of this item", Required: true},
				{Name: "title", Type: "string", Description: "New title"},
				{Name: "description", Type: "string", Description: "New description"},
				{Name: "state", Type: "string", Description: "New state (e.g., New, Active, Resolved, Closed)"},
				{Name: "priority", Type: "integer", Description: "New priority (1 is highest)"},
				{Name: "assigned_to", Type: "string", Description: "New assignee (email or display name)"},
				{Name: "comment", Type: "string", Description: "Discussion comment to add"},
			},
			Handler: actions.update,
		},
		{
			Name:        ToolAddLink,
			Description: "Links a work item to another work item (by ID) or to a URL. Requires the current revision",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "id", Type: "integer", Description: "The work item ID to add the link to", Required: true},
				{Name: "revision", Type: "integer", Description: "The revision returned by the last create or update of this item", Required: true},
				{Name: "target", Type: "string", Description: "Target work item ID or a URL", Required: true},
				{Name: "relation_type", Type: "string", Description: "Relation type for work item targets (e.g., System.LinkTypes.Related, System.LinkTypes.Hierarchy-Forward)"},
				{Name: "comment", Type: "string", Description: "Comment attached to the link"},
			},
			Handler: actions.addLink,
		},
	}

	for _, tool := range tools {
		if err := registrar.RegisterTool(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}

	return nil
}

type actions struct {
	builder *Builder
	mutator Mutator
}

func (a *actions) create(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	priority, err := intParam(params, "priority")
	if err != nil {
		return nil, err
	}
	if _, ok := params["priority"]; !ok {
		priority = DefaultCreatePriority
	}

	workItemType := stringParam(params, "work_item_type")
	doc, err := a.builder.BuildCreate(workItemType, CreateFields{
		Title:       stringParam(params, "title"),
		Description: stringParam(params, "description"),
		Priority:    priority,
		AssignedTo:  stringParam(params, "assigned_to"),
	})
	if err != nil {
		return nil, err
	}

	ref, err := a.mutator.Create(ctx, workItemType, doc)
	if err != nil {
		return nil, describeFailure("create work item", 0, err)
	}
	return fmt.Sprintf("Work item created: ID %d, Revision %d, URL: %s", ref.ID, ref.Rev, ref.URL), nil
}

func (a *actions) update(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	id, revision, err := guardParams(params)
	if err != nil {
		return nil, err
	}
	priority, err := intParam(params, "priority")
	if err != nil {
		return nil, err
	}

	doc, err := a.builder.BuildUpdate(id, revision, UpdateFields{
		Title:       stringParam(params, "title"),
		Description: stringParam(params, "description"),
		State:       stringParam(params, "state"),
		Priority:    priority,
		AssignedTo:  stringParam(params, "assigned_to"),
		Comment:     stringParam(params, "comment"),
	})
	if errors.Is(err, ErrNoChanges) {
		return fmt.Sprintf("No changes requested for work item %d; revision is still %d", id, revision), nil
	}
	if err != nil {
		return nil, err
	}

	ref, err := a.mutator.Update(ctx, id, doc)
	if err != nil {
		return nil, describeFailure("update work item", id, err)
	}
	return fmt.Sprintf("Work item %d updated: Revision %d, URL: %s", ref.ID, ref.Rev, ref.URL), nil
}

func (a *actions) addLink(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	id, revision, err := guardParams(params)
	if err != nil {
		return nil, err
	}

	doc, err := a.builder.BuildLink(id, revision, Link{
		Kind:    stringParam(params, "relation_type"),
		Target:  stringParam(params, "target"),
		Comment: stringParam(params, "comment"),
	})
	if err != nil {
		return nil, err
	}

	ref, err := a.mutator.AddLink(ctx, id, doc)
	if err != nil {
		return nil, describeFailure("link work item", id, err)
	}
	return fmt.Sprintf("Link added to work item %d: Revision %d, URL: %s", ref.ID, ref.Rev, ref.URL), nil
}

func describeFailure(action string, id int, err error) error {
	if IsConflict(err) {
		return fmt.Errorf("revision conflict on work item %d: it was changed since the given revision; fetch the latest revision and retry", id)
	}
	var mutationErr *MutationError
	if errors.As(err, &mutationErr) && mutationErr.StatusCode != 0 {
		return fmt.Errorf("failed to %s. Error: %d, %s", action, mutationErr.StatusCode, mutationErr.Body)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func guardParams(params map[string]interface{}) (int, int, error) {
	id, err := intParam(params, "id")
	if err != nil {
		return 0, 0, err
	}
	revision, err := intParam(params, "revision")
	if err != nil {
		return 0, 0, err
	}
	return id, revision, nil
}

func stringParam(params map[string]interface{}, name string) string {
	if v, ok := params[name].(string); ok {
		return v
	}
	return ""
}

// intParam reads an integer parameter. Missing parameters read as 0.
func intParam(params map[string]interface{}, name string) (int, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return 0, nil
	}

	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, &ValidationError{Field: name, Reason: fmt.Sprintf("must be an integer, got %v", v)}
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, &ValidationError{Field: name, Reason: err.Error()}
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, &ValidationError{Field: name, Reason: fmt.Sprintf("must be an integer, got %q", v)}
		}
		return n, nil
	default:
		return 0, &ValidationError{Field: name, Reason: fmt.Sprintf("unsupported type %T", raw)}
	}
}
