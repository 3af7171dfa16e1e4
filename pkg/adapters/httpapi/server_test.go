package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverbedai/riverbed"
	"github.com/riverbedai/riverbed/pkg/adapters/httpapi"
	"github.com/riverbedai/riverbed/pkg/adapters/memory"
	"github.com/riverbedai/riverbed/pkg/domain"
	"github.com/riverbedai/riverbed/pkg/observability"
)

type scriptedCompleter struct {
	mu        sync.Mutex
	responses []map[string]any
	calls     int
}

func (c *scriptedCompleter) Complete(ctx context.Context, prompt string, schema *domain.OutputSchema) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls % len(c.responses)
	c.calls++
	return c.responses[i], nil
}

func testGraph() *domain.Graph {
	return &domain.Graph{
		Name:          "triage",
		Version:       1,
		StartNode:     "intake",
		TerminalNodes: []string{"done", "failed"},
		FailureNode:   "failed",
		Nodes: []domain.Node{
			{ID: "intake", Type: domain.NodeInit, Prompt: "Classify: {{request}}"},
			{ID: "answer", Type: domain.NodeReason, Prompt: "Answer for {{data.topic}}"},
			{ID: "done", Type: domain.NodeTerminal},
			{ID: "failed", Type: domain.NodeTerminal},
		},
		Edges: []domain.Edge{
			{ID: "e1", From: "intake", To: "answer", Kind: domain.EdgeForward, Priority: 1},
			{ID: "e2", From: "answer", To: "done", Kind: domain.EdgeForward, Priority: 1},
		},
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	completer := &scriptedCompleter{responses: []map[string]any{
		{"topic": "billing"},
		{"answer": "42"},
	}}
	eng, err := riverbed.New(context.Background(), memory.NewGraphSource(testGraph()), completer)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	_ = observability.NewMetrics(reg)

	server := httptest.NewServer(httpapi.NewHandler(eng, httpapi.WithMetricsGatherer(reg)))
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	server := newServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndExecuteRun(t *testing.T) {
	server := newServer(t)

	resp := postJSON(t, server.URL+"/runs", httpapi.CreateRunRequest{
		Request: "what is my invoice total?",
		Execute: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[httpapi.CreateRunResponse](t, resp)
	assert.NotEmpty(t, created.RunID)
	require.NotNil(t, created.Result)
	assert.Equal(t, domain.OutcomeSuccess, created.Result.Outcome)

	// Status after completion reports the archived outcome.
	statusResp, err := http.Get(server.URL + "/runs/" + created.RunID)
	require.NoError(t, err)
	status := decode[riverbed.Status](t, statusResp)
	assert.True(t, status.Finished)
	assert.Equal(t, domain.OutcomeSuccess, status.Outcome)

	auditResp, err := http.Get(server.URL + "/runs/" + created.RunID + "/audit")
	require.NoError(t, err)
	audit := decode[map[string][]domain.AuditEvent](t, auditResp)
	assert.NotEmpty(t, audit["events"])
}

func TestCreateWithoutRequestRejected(t *testing.T) {
	server := newServer(t)

	resp := postJSON(t, server.URL+"/runs", httpapi.CreateRunRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunNotFound(t *testing.T) {
	server := newServer(t)

	resp, err := http.Get(server.URL + "/runs/no-such-run/result")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLearnWithoutRuns(t *testing.T) {
	server := newServer(t)

	resp := postJSON(t, server.URL+"/learn", map[string]any{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestFactsRoundtrip(t *testing.T) {
	server := newServer(t)

	resp := postJSON(t, server.URL+"/facts", httpapi.WriteFactRequest{
		Fact: domain.Fact{Text: "acme prefers terse answers", Confidence: 0.8},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	written := decode[domain.Fact](t, resp)
	assert.NotEmpty(t, written.ID)

	getResp, err := http.Get(server.URL + "/facts?text=acme")
	require.NoError(t, err)
	facts := decode[map[string][]domain.Fact](t, getResp)
	require.Len(t, facts["facts"], 1)
	assert.Equal(t, written.ID, facts["facts"][0].ID)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newServer(t)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
