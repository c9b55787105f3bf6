package workitem

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Op is a JSON-patch operation name understood by the tracking service.
type Op string

const (
	OpAdd  Op = "add"
	OpTest Op = "test"
)

// Field reference names used in patch paths.
const (
	FieldTitle       = "System.Title"
	FieldDescription = "System.Description"
	FieldState       = "System.State"
	FieldPriority    = "Microsoft.VSTS.Common.Priority"
	FieldAssignedTo  = "System.AssignedTo"
	FieldHistory     = "System.History"
)

const (
	pathRevision  = "/rev"
	pathRelations = "/relations/-"

	// RelationHyperlink is used for link targets that are not work item ids.
	RelationHyperlink = "Hyperlink"
	// RelationRelated is the default work-item-to-work-item link type.
	RelationRelated = "System.LinkTypes.Related"
)

// Operation is a single field-level change.
type Operation struct {
	Op    Op     `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Document is the ordered operation list sent as one atomic request.
type Document []Operation

// HasPrecondition reports whether the document starts with a revision test.
func (d Document) HasPrecondition() bool {
	return len(d) > 0 && d[0].Op == OpTest && d[0].Path == pathRevision
}

// Revision returns the revision asserted by the leading test operation.
func (d Document) Revision() (int, bool) {
	if !d.HasPrecondition() {
		return 0, false
	}
	rev, ok := d[0].Value.(int)
	return rev, ok
}

// HasRelation reports whether the document appends a relation.
func (d Document) HasRelation() bool {
	for _, op := range d {
		if op.Path == pathRelations {
			return true
		}
	}
	return false
}

// Relation is the value of an add /relations/- operation.
type Relation struct {
	Rel        string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// CreateFields are the fields settable on creation. Zero values are not sent.
type CreateFields struct {
	Title       string
	Description string
	Priority    int
	AssignedTo  string
}

// UpdateFields are the fields settable on update. Zero values are not sent,
// so a field cannot be cleared through this API.
type UpdateFields struct {
	Title       string
	Description string
	State       string
	Priority    int
	AssignedTo  string
	Comment     string
}

// Link describes a relation to add to a work item.
type Link struct {
	// Kind is the relation type used when Target is a work item id.
	Kind string
	// Target is either a work item id or an arbitrary URL.
	Target  string
	Comment string
}

// Builder translates mutation intents into patch documents.
type Builder struct {
	organizationURL string
	project         string
}

// NewBuilder creates a builder for items of the given organization and project.
func NewBuilder(organizationURL, project string) *Builder {
	return &Builder{
		organizationURL: strings.TrimRight(organizationURL, "/"),
		project:         project,
	}
}

// ItemURL returns the REST address of a work item, with the project path
// segment escaped.
func (b *Builder) ItemURL(id int) string {
	return itemURL(b.organizationURL, b.project, id)
}

func itemURL(organizationURL, project string, id int) string {
	return fmt.Sprintf("%s/%s/_apis/wit/workitems/%d", organizationURL, url.PathEscape(project), id)
}

// BuildCreate builds the document for a new work item. The type is not part of
// the payload; it is carried by the request address.
func (b *Builder) BuildCreate(workItemType string, f CreateFields) (Document, error) {
	if strings.TrimSpace(workItemType) == "" {
		return nil, &ValidationError{Field: "work item type", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(f.Title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "cannot be empty"}
	}

	doc := Document{addField(FieldTitle, f.Title)}
	doc = appendString(doc, FieldDescription, f.Description)
	doc = appendPriority(doc, f.Priority)
	doc = appendString(doc, FieldAssignedTo, f.AssignedTo)
	return doc, nil
}

// BuildUpdate builds an update guarded by the given revision. It returns
// ErrNoChanges when f carries nothing to write.
func (b *Builder) BuildUpdate(id, revision int, f UpdateFields) (Document, error) {
	doc, err := precondition(id, revision)
	if err != nil {
		return nil, err
	}

	doc = appendString(doc, FieldTitle, f.Title)
	doc = appendString(doc, FieldDescription, f.Description)
	doc = appendString(doc, FieldState, f.State)
	doc = appendPriority(doc, f.Priority)
	doc = appendString(doc, FieldAssignedTo, f.AssignedTo)
	doc = appendString(doc, FieldHistory, f.Comment)

	if len(doc) == 1 {
		return nil, ErrNoChanges
	}
	return doc, nil
}

// BuildLink builds a document adding one relation, guarded by the given revision.
// A Target that parses as an integer links to that work item; anything else
// becomes a hyperlink to Target verbatim.
func (b *Builder) BuildLink(id, revision int, l Link) (Document, error) {
	doc, err := precondition(id, revision)
	if err != nil {
		return nil, err
	}

	target := strings.TrimSpace(l.Target)
	if target == "" {
		return nil, &ValidationError{Field: "link target", Reason: "cannot be empty"}
	}

	var rel Relation
	if targetID, err := strconv.Atoi(target); err == nil {
		if targetID <= 0 {
			return nil, &ValidationError{Field: "link target", Reason: fmt.Sprintf("work item id must be positive, got %d", targetID)}
		}
		kind := l.Kind
		if kind == "" {
			kind = RelationRelated
		}
		rel = Relation{Rel: kind, URL: b.ItemURL(targetID)}
	} else {
		rel = Relation{Rel: RelationHyperlink, URL: target}
	}

	if l.Comment != "" {
		rel.Attributes = map[string]any{"comment": l.Comment}
	}

	return append(doc, Operation{Op: OpAdd, Path: pathRelations, Value: rel}), nil
}

func precondition(id, revision int) (Document, error) {
	if id <= 0 {
		return nil, &ValidationError{Field: "id", Reason: fmt.Sprintf("must be positive, got %d", id)}
	}
	if revision < 0 {
		return nil, &ValidationError{Field: "revision", Reason: fmt.Sprintf("cannot be negative, got %d", revision)}
	}
	return Document{{Op: OpTest, Path: pathRevision, Value: revision}}, nil
}

func addField(name string, value any) Operation {
	return Operation{Op: OpAdd, Path: "/fields/" + name, Value: value}
}

func appendString(doc Document, name, value string) Document {
	if value == "" {
		return doc
	}
	return append(doc, addField(name, value))
}

// priority 0 is the unset sentinel
func appendPriority(doc Document, priority int) Document {
	if priority <= 0 {
		return doc
	}
	return append(doc, addField(FieldPriority, priority))
}
