package circuitflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/impromptu-ai/circuitflow/event"
)

// newStreamServer serves one SSE response per request from the frames
// returned by the pick function.
func newStreamServer(t *testing.T, pick func(n int64) []string) *httptest.Server {
	t.Helper()
	var requests atomic.Int64
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		for _, frame := range pick(requests.Add(1)) {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}))
}

func drain(run *Run) []Snapshot {
	var snaps []Snapshot
	for snap := range run.Next() {
		snaps = append(snaps, snap)
	}
	return snaps
}

func TestRunHappyPath(t *testing.T) {
	frames := []string{
		`{"type":"run_started"}`,
		`{"type":"workflow_started","workflow":"spec_generation"}`,
		`{"type":"workflow_succeeded","workflow":"spec_generation","result":{"spec":"blink an LED"},"context":{"duration_ns":2500000,"total_tokens":200,"cost":0.01}}`,
		`{"type":"workflow_started","workflow":"netlist_generation"}`,
		`{"type":"substage_started","workflow":"netlist_generation","substage":"generate"}`,
		`{"type":"substage_completed","workflow":"netlist_generation","substage":"generate"}`,
		`{"type":"workflow_succeeded","workflow":"netlist_generation","context":{"duration_ns":5000000,"total_tokens":300,"cost":0.02}}`,
		`{"type":"workflow_started","workflow":"circuit_to_printer"}`,
		`{"type":"workflow_succeeded","workflow":"circuit_to_printer","context":{}}`,
		`{"type":"run_succeeded"}`,
		`{"type":"complete"}`,
	}
	server := newStreamServer(t, func(int64) []string { return frames })
	defer server.Close()

	client := NewClient(server.URL)
	run, err := client.CreateRun(context.Background(), CreateRequest{UserInput: "blink an LED"})
	require.NoError(t, err)

	snaps := drain(run)
	require.NoError(t, run.Wait())
	require.NotEmpty(t, snaps)

	final := run.Snapshot()
	assert.False(t, final.Running)
	for _, st := range final.Stages {
		assert.Equal(t, event.StatusSuccess, st.Status, "stage %s", st.ID)
	}

	spec := final.Stages[0]
	assert.Equal(t, int64(2), spec.DurationMS)
	assert.Equal(t, map[string]any{"spec": "blink an LED"}, spec.Result)

	netlist := final.Stages[1]
	assert.Equal(t, event.StatusSuccess, netlist.Substages[0].Status)

	assert.Equal(t, int64(500), final.TotalTokens())
	assert.InDelta(t, 0.03, final.TotalCost(), 1e-9)
	assert.Equal(t, 100.0, final.Progress())
	assert.Equal(t, StageCircuitToPrinter, final.Focused)
}

func TestRunSkipsMalformedFrame(t *testing.T) {
	frames := []string{
		`{"type":"workflow_started","workflow":"spec_generation"}`,
		`{not valid json`,
		`{"type":"workflow_succeeded","workflow":"spec_generation","context":{}}`,
		`{"type":"complete"}`,
	}
	server := newStreamServer(t, func(int64) []string { return frames })
	defer server.Close()

	client := NewClient(server.URL)
	run, err := client.CreateRun(context.Background(), CreateRequest{UserInput: "x"})
	require.NoError(t, err)

	drain(run)
	require.NoError(t, run.Wait())
	assert.Equal(t, event.StatusSuccess, run.Snapshot().Stages[0].Status)
}

func TestRunConnectionDropForcesRunningToError(t *testing.T) {
	frames := []string{
		`{"type":"workflow_succeeded","workflow":"spec_generation","context":{}}`,
		`{"type":"workflow_started","workflow":"netlist_generation"}`,
		// Stream ends here with no end-of-stream marker.
	}
	server := newStreamServer(t, func(int64) []string { return frames })
	defer server.Close()

	client := NewClient(server.URL)
	run, err := client.CreateRun(context.Background(), CreateRequest{UserInput: "x"})
	require.NoError(t, err)

	drain(run)
	assert.ErrorIs(t, run.Wait(), ErrStreamInterrupted)

	snap := run.Snapshot()
	assert.Equal(t, event.StatusSuccess, snap.Stages[0].Status)
	assert.Equal(t, event.StatusError, snap.Stages[1].Status)
	assert.GreaterOrEqual(t, snap.Stages[1].DurationMS, int64(0))
	assert.Equal(t, event.StatusPending, snap.Stages[2].Status)
	assert.False(t, snap.Running)
}

func TestRunIgnoresUnknownEventTypes(t *testing.T) {
	frames := []string{
		`{"type":"telemetry_v2","workflow":"spec_generation","payload":"xyz"}`,
		`{"type":"workflow_started","workflow":"spec_generation"}`,
		`{"type":"workflow_succeeded","workflow":"spec_generation","context":{}}`,
		`{"type":"complete"}`,
	}
	server := newStreamServer(t, func(int64) []string { return frames })
	defer server.Close()

	client := NewClient(server.URL)
	run, err := client.CreateRun(context.Background(), CreateRequest{UserInput: "x"})
	require.NoError(t, err)

	drain(run)
	require.NoError(t, run.Wait())
	assert.Equal(t, event.StatusSuccess, run.Snapshot().Stages[0].Status)
}

func TestRunCancelTearsDownStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"workflow_started\",\"workflow\":\"spec_generation\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL)
	run, err := client.CreateRun(context.Background(), CreateRequest{UserInput: "x"})
	require.NoError(t, err)

	// Let the first frame arrive before abandoning the run.
	select {
	case <-run.Next():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first snapshot")
	}
	run.Cancel()

	assert.ErrorIs(t, run.Wait(), context.Canceled)
	assert.Equal(t, event.StatusError, run.Snapshot().Stages[0].Status)
}

func TestCreateRunSupersedesPreviousRun(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		if requests.Add(1) == 1 {
			// First run: stream never completes on its own.
			flusher.Flush()
			<-r.Context().Done()
			return
		}
		for _, frame := range []string{
			`{"type":"workflow_succeeded","workflow":"spec_generation","context":{}}`,
			`{"type":"complete"}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	first, err := client.CreateRun(context.Background(), CreateRequest{UserInput: "first"})
	require.NoError(t, err)

	second, err := client.CreateRun(context.Background(), CreateRequest{UserInput: "second"})
	require.NoError(t, err)

	// The first run was cancelled and fully drained before the second
	// one started.
	assert.Error(t, first.Err())
	assert.NotEqual(t, first.ID(), second.ID())

	drain(second)
	require.NoError(t, second.Wait())
}

func TestExecuteArtifact(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = body["artifact"]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.ExecuteArtifact(context.Background(), "G1 X10 Y10"))
	assert.Equal(t, "G1 X10 Y10", got)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "printer offline", http.StatusBadGateway)
	}))
	defer failing.Close()

	assert.Error(t, NewClient(failing.URL).ExecuteArtifact(context.Background(), "G1"))
}
