package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewright/internal/conversation"
	"pagewright/internal/driver"
	"pagewright/internal/llm"
	"pagewright/internal/publish"
	"pagewright/internal/role"
	"pagewright/internal/selector"
	"pagewright/internal/store"
)

const testPage = `<!DOCTYPE html>
<html><head><title>stopwatch</title></head>
<body><main>a perfectly adequate stopwatch page</main></body></html>`

var happyReplies = map[conversation.Speaker][]string{
	conversation.RoleRequirements: {"Requirements are clear. Ready for development."},
	conversation.RoleBuilder:      {"```html\n" + testPage + "\n```"},
	conversation.RoleReviewer:     {"READY FOR USER APPROVAL"},
}

// factoryFor builds one fresh scripted driver per run.
func factoryFor(replies map[conversation.Speaker][]string) DriverFactory {
	return func(cb driver.TurnCallback) *driver.Driver {
		d := driver.New(selector.Rules{}, llm.NewScripted(replies), role.Defaults(), nil)
		d.SetTurnCallback(cb)
		return d
	}
}

// blockingClient parks every generation call until the run context ends.
type blockingClient struct{}

func (blockingClient) GenerateReply(ctx context.Context, _ role.Definition, _ conversation.History) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newTestServer(t *testing.T, factory DriverFactory) (*httptest.Server, *store.Store, string) {
	t.Helper()
	archive, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	out := filepath.Join(t.TempDir(), "index.html")
	gate := publish.NewGate(out, nil, nil)

	s, err := New(factory, gate, archive, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts, archive, out
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
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func startRun(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/runs", map[string]string{"request": "build a stopwatch"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	created := decode[runSummary](t, resp)
	require.NotEmpty(t, created.ID)
	return created.ID
}

func waitForOutcome(t *testing.T, ts *httptest.Server, id string, want driver.Outcome) runDetail {
	t.Helper()
	var detail runDetail
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/runs/" + id)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		detail = decode[runDetail](t, resp)
		return detail.Outcome == want
	}, 5*time.Second, 20*time.Millisecond)
	return detail
}

func TestRunLifecycle(t *testing.T) {
	ts, archive, _ := newTestServer(t, factoryFor(happyReplies))

	id := startRun(t, ts)
	detail := waitForOutcome(t, ts, id, driver.OutcomeReadyForApproval)

	require.Len(t, detail.Messages, 4)
	assert.Equal(t, "human", detail.Messages[0].Speaker)
	assert.Equal(t, "reviewer", detail.Messages[3].Speaker)
	assert.NotEmpty(t, detail.Messages[1].HTML)

	// The finished run lands in the archive.
	require.Eventually(t, func() bool {
		run, err := archive.GetRun(context.Background(), id)
		return err == nil && run.Outcome == driver.OutcomeReadyForApproval
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCreateRunRejectsEmptyRequest(t *testing.T) {
	ts, _, _ := newTestServer(t, factoryFor(happyReplies))
	resp := postJSON(t, ts.URL+"/api/runs", map[string]string{"request": "   "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRunNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t, factoryFor(happyReplies))
	resp, err := http.Get(ts.URL + "/api/runs/no-such-run")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPublishFlow(t *testing.T) {
	ts, archive, out := newTestServer(t, factoryFor(happyReplies))

	id := startRun(t, ts)
	waitForOutcome(t, ts, id, driver.OutcomeReadyForApproval)

	t.Run("wrong token is rejected with the literal input", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/runs/"+id+"/publish", map[string]string{"decision": "yes please"})
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.Equal(t, "yes please", body["input"])
		assert.NoFileExists(t, out)
	})

	t.Run("approval token publishes", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/runs/"+id+"/publish", map[string]string{"decision": "APPROVED"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		receipt := decode[publish.Receipt](t, resp)
		assert.Equal(t, out, receipt.LocalPath)
		assert.True(t, receipt.LocalOnly)
		assert.FileExists(t, out)

		run, err := archive.GetRun(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, run.Published)
	})
}

func TestPublishBeforeTerminalIsConflict(t *testing.T) {
	ts, _, _ := newTestServer(t, func(cb driver.TurnCallback) *driver.Driver {
		d := driver.New(selector.Rules{}, blockingClient{}, role.Defaults(), nil)
		d.SetTurnCallback(cb)
		return d
	})

	id := startRun(t, ts)
	resp := postJSON(t, ts.URL+"/api/runs/"+id+"/publish", map[string]string{"decision": "APPROVED"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Clean up the parked run.
	cancelResp := postJSON(t, ts.URL+"/api/runs/"+id+"/cancel", nil)
	cancelResp.Body.Close()
}

func TestCancelRun(t *testing.T) {
	ts, _, _ := newTestServer(t, func(cb driver.TurnCallback) *driver.Driver {
		d := driver.New(selector.Rules{}, blockingClient{}, role.Defaults(), nil)
		d.SetTurnCallback(cb)
		return d
	})

	id := startRun(t, ts)

	resp := postJSON(t, ts.URL+"/api/runs/"+id+"/cancel", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	detail := waitForOutcome(t, ts, id, driver.OutcomeIncomplete)
	assert.True(t, detail.Canceled)

	// A canceled run can never reach the publish gate.
	pubResp := postJSON(t, ts.URL+"/api/runs/"+id+"/publish", map[string]string{"decision": "APPROVED"})
	defer pubResp.Body.Close()
	assert.Equal(t, http.StatusConflict, pubResp.StatusCode)
}

func TestCancelFinishedRunIsConflict(t *testing.T) {
	ts, _, _ := newTestServer(t, factoryFor(happyReplies))
	id := startRun(t, ts)
	waitForOutcome(t, ts, id, driver.OutcomeReadyForApproval)

	resp := postJSON(t, ts.URL+"/api/runs/"+id+"/cancel", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListRuns(t *testing.T) {
	ts, _, _ := newTestServer(t, factoryFor(happyReplies))
	id := startRun(t, ts)
	waitForOutcome(t, ts, id, driver.OutcomeReadyForApproval)

	resp, err := http.Get(ts.URL + "/api/runs")
	require.NoError(t, err)
	runs := decode[[]runSummary](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}

func TestIndexServesEmbeddedUI(t *testing.T) {
	ts, _, _ := newTestServer(t, factoryFor(happyReplies))
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}
