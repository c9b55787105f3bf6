package workitem

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harun/backlog-agent/internal/observability"
	"github.com/harun/backlog-agent/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultAPIVersion is the REST API version sent with every request.
	DefaultAPIVersion = "7.1"

	contentTypePatch = "application/json-patch+json"
	maxErrorBody     = 64 * 1024
)

// WorkItemRef identifies a work item at a specific revision.
type WorkItemRef struct {
	ID  int    `json:"id"`
	Rev int    `json:"rev"`
	URL string `json:"url"`
}

// Mutator issues patch documents against the tracking service.
type Mutator interface {
	Create(ctx context.Context, workItemType string, doc Document) (*WorkItemRef, error)
	Update(ctx context.Context, id int, doc Document) (*WorkItemRef, error)
	AddLink(ctx context.Context, id int, doc Document) (*WorkItemRef, error)
}

// ClientConfig holds tracking service connection settings.
type ClientConfig struct {
	OrganizationURL     string
	Project             string
	PersonalAccessToken string
	APIVersion          string
	Timeout             time.Duration
	HTTPClient          *http.Client
	Logger              zerolog.Logger
}

// Client performs work item mutations. It is safe for concurrent use.
type Client struct {
	httpClient      *http.Client
	organizationURL string
	project         string
	apiVersion      string
	authorization   string
	logger          zerolog.Logger
}

var _ Mutator = (*Client)(nil)

// NewClient creates a new tracking service client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.OrganizationURL == "" {
		return nil, fmt.Errorf("organization URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.OrganizationURL); err != nil {
		return nil, fmt.Errorf("invalid organization URL: %w", err)
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("project is required")
	}
	if cfg.PersonalAccessToken == "" {
		return nil, fmt.Errorf("personal access token is required")
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(":" + cfg.PersonalAccessToken))

	return &Client{
		httpClient:      httpClient,
		organizationURL: strings.TrimRight(cfg.OrganizationURL, "/"),
		project:         cfg.Project,
		apiVersion:      apiVersion,
		authorization:   "Basic " + credentials,
		logger:          cfg.Logger,
	}, nil
}

// Builder returns a patch builder addressing this client's organization and project.
func (c *Client) Builder() *Builder {
	return NewBuilder(c.organizationURL, c.project)
}

// Create creates a work item of the given type.
func (c *Client) Create(ctx context.Context, workItemType string, doc Document) (*WorkItemRef, error) {
	if strings.TrimSpace(workItemType) == "" {
		return nil, &ValidationError{Field: "work item type", Reason: "cannot be empty"}
	}
	if len(doc) == 0 {
		return nil, &ValidationError{Field: "document", Reason: "cannot be empty"}
	}

	// the type segment is "$Type", escaped as a single path segment
	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/$%s?api-version=%s",
		c.organizationURL, url.PathEscape(c.project), url.PathEscape(workItemType), c.apiVersion)

	return c.send(ctx, "create", http.MethodPost, endpoint, doc,
		attribute.String("work_item_type", workItemType))
}

// Update applies a revision-guarded update to a work item.
func (c *Client) Update(ctx context.Context, id int, doc Document) (*WorkItemRef, error) {
	if err := validateGuarded(id, doc); err != nil {
		return nil, err
	}
	rev, _ := doc.Revision()
	return c.send(ctx, "update", http.MethodPatch, c.itemEndpoint(id), doc,
		attribute.Int("work_item_id", id),
		attribute.Int("expected_revision", rev))
}

// AddLink applies a revision-guarded relation append to a work item.
func (c *Client) AddLink(ctx context.Context, id int, doc Document) (*WorkItemRef, error) {
	if err := validateGuarded(id, doc); err != nil {
		return nil, err
	}
	if !doc.HasRelation() {
		return nil, &ValidationError{Field: "document", Reason: "does not add a relation"}
	}
	rev, _ := doc.Revision()
	return c.send(ctx, "add_link", http.MethodPatch, c.itemEndpoint(id), doc,
		attribute.Int("work_item_id", id),
		attribute.Int("expected_revision", rev))
}

func (c *Client) itemEndpoint(id int) string {
	return itemURL(c.organizationURL, c.project, id) + "?api-version=" + c.apiVersion
}

func validateGuarded(id int, doc Document) error {
	if id <= 0 {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("must be positive, got %d", id)}
	}
	if _, ok := doc.Revision(); !ok {
		return &ValidationError{Field: "document", Reason: "must start with a test operation on /rev"}
	}
	if len(doc) == 1 {
		return ErrNoChanges
	}
	return nil
}

// send performs one request and translates the response.
func (c *Client) send(ctx context.Context, op, method, endpoint string, doc Document, attrs ...attribute.KeyValue) (*WorkItemRef, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(ctx, "backlog.workitem", "workitem."+op, attrs...)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, c.logger).With().Str("op", op).Logger()

	start := time.Now()
	ref, err := c.do(ctx, op, method, endpoint, doc)
	duration := time.Since(start)

	status := observability.MutationSuccess
	if err != nil {
		status = observability.MutationError
		if IsConflict(err) {
			status = observability.MutationConflict
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Dur("duration", duration).Msg("Work item mutation failed")
	} else {
		logger.Info().
			Int("work_item_id", ref.ID).
			Int("rev", ref.Rev).
			Dur("duration", duration).
			Msg("Work item mutation applied")
	}
	observability.RecordWorkItemMutation(op, status, duration)
	observability.RecordMutationAudit(ctx, op, tracing.GetSessionID(ctx), status, auditMetadata(ref, err))

	return ref, err
}

func auditMetadata(ref *WorkItemRef, err error) map[string]interface{} {
	if ref != nil {
		return map[string]interface{}{"work_item_id": ref.ID, "rev": ref.Rev}
	}
	var mutationErr *MutationError
	if errors.As(err, &mutationErr) && mutationErr.StatusCode != 0 {
		return map[string]interface{}{"status_code": mutationErr.StatusCode}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, doc Document) (*WorkItemRef, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentTypePatch)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &MutationError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &MutationError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Conflict:   isConflictResponse(resp.StatusCode, body),
		}
	}

	var ref WorkItemRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return nil, &MutationError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return &ref, nil
}

// conflictMarkers identify a failed /rev test in a 400 response body.
var conflictMarkers = []string{
	"TestOperationFailed",
	"PatchOperationFailed",
	"RevisionMismatch",
	"TF26071",
}

func isConflictResponse(status int, body []byte) bool {
	switch status {
	case http.StatusConflict, http.StatusPreconditionFailed:
		return true
	case http.StatusBadRequest:
		text := string(body)
		for _, marker := range conflictMarkers {
			if strings.Contains(text, marker) {
				return true
			}
		}
	}
	return false
}
