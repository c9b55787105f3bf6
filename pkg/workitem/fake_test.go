package workitem

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testPAT     = "test-personal-access-token"
	testProject = "Backlog"
)

type fakeItem struct {
	id        int
	rev       int
	itemType  string
	fields    map[string]interface{}
	relations []map[string]interface{}
}

// fakeTracker emulates the work item endpoints of the tracking service,
// including sequential patch evaluation with /rev tests.
type fakeTracker struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	nextID   int
	items    map[int]*fakeItem
	requests []*http.Request
}

func newFakeTracker(t *testing.T) *fakeTracker {
	f := &fakeTracker{
		t:      t,
		nextID: 100,
		items:  make(map[int]*fakeItem),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeTracker) orgURL() string {
	return f.server.URL + "/acme"
}

func (f *fakeTracker) client(t *testing.T) *Client {
	client, err := NewClient(ClientConfig{
		OrganizationURL:     f.orgURL(),
		Project:             testProject,
		PersonalAccessToken: testPAT,
		Logger:              zerolog.Nop(),
	})
	require.NoError(t, err)
	return client
}

func (f *fakeTracker) item(id int) *fakeItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}

func (f *fakeTracker) lastRequest() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeTracker) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// bump simulates an independent writer changing the item.
func (f *fakeTracker) bump(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id].rev++
}

func (f *fakeTracker) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)

	expectedAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+testPAT))
	if r.Header.Get("Authorization") != expectedAuth {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Header.Get("Content-Type") != "application/json-patch+json" {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}
	if r.URL.Query().Get("api-version") != "7.1" {
		http.Error(w, "missing api-version", http.StatusBadRequest)
		return
	}

	prefix := "/acme/" + testProject + "/_apis/wit/workitems/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	segment := strings.TrimPrefix(r.URL.Path, prefix)

	var ops []map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		http.Error(w, "invalid patch document", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		if !strings.HasPrefix(segment, "$") {
			http.Error(w, "type segment must start with $", http.StatusBadRequest)
			return
		}
		item := &fakeItem{
			id:       f.nextID,
			rev:      1,
			itemType: strings.TrimPrefix(segment, "$"),
			fields:   make(map[string]interface{}),
		}
		f.nextID++
		if !f.apply(w, item, ops) {
			return
		}
		if _, ok := item.fields["System.Title"]; !ok {
			http.Error(w, `{"message":"TF401320: Rule Error for field Title"}`, http.StatusBadRequest)
			return
		}
		f.items[item.id] = item
		f.respond(w, item)

	case http.MethodPatch:
		id, err := strconv.Atoi(segment)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		item, ok := f.items[id]
		if !ok {
			http.Error(w, fmt.Sprintf(`{"message":"TF401232: Work item %d does not exist"}`, id), http.StatusNotFound)
			return
		}
		// work on a copy so a failed patch applies nothing
		staged := *item
		staged.fields = make(map[string]interface{}, len(item.fields))
		for k, v := range item.fields {
			staged.fields[k] = v
		}
		staged.relations = append([]map[string]interface{}{}, item.relations...)
		if !f.apply(w, &staged, ops) {
			return
		}
		staged.rev++
		f.items[id] = &staged
		f.respond(w, &staged)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *fakeTracker) apply(w http.ResponseWriter, item *fakeItem, ops []map[string]interface{}) bool {
	for _, op := range ops {
		path, _ := op["path"].(string)
		switch op["op"] {
		case "test":
			if path != "/rev" {
				http.Error(w, "unsupported test path", http.StatusBadRequest)
				return false
			}
			if rev, _ := op["value"].(float64); int(rev) != item.rev {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusPreconditionFailed)
				fmt.Fprintf(w, `{"message":"TF26071: This work item has been changed by someone else since you opened it.","typeKey":"WorkItemRevisionMismatchException"}`)
				return false
			}
		case "add":
			switch {
			case strings.HasPrefix(path, "/fields/"):
				item.fields[strings.TrimPrefix(path, "/fields/")] = op["value"]
			case path == "/relations/-":
				rel, _ := op["value"].(map[string]interface{})
				item.relations = append(item.relations, rel)
			default:
				http.Error(w, "unsupported path", http.StatusBadRequest)
				return false
			}
		default:
			http.Error(w, "unsupported op", http.StatusBadRequest)
			return false
		}
	}
	return true
}

func (f *fakeTracker) respond(w http.ResponseWriter, item *fakeItem) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":  item.id,
		"rev": item.rev,
		"url": fmt.Sprintf("%s/_apis/wit/workItems/%d", f.orgURL(), item.id),
	})
}
