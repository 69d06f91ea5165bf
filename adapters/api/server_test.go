package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/adapters/ledger"
	"eegprep/domain/core"
	"eegprep/domain/run"
	"eegprep/domain/stage"
)

func newTestServer(t *testing.T) (*Server, core.RunID) {
	t.Helper()
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	runID := core.NewRunID()

	plan := stage.NewStagePlan([]stage.StageSpec{{Name: stage.StageHighpass, Kind: stage.StageKindPreprocess}})
	m := run.NewRunManifestArtifact(runID, "rec-1", []string{"Fz"}, map[string]interface{}{"highpass": 1.0}, plan, 11, 99, "test")
	require.NoError(t, l.StoreArtifact(ctx, runID, m.ToCoreArtifact()))
	require.NoError(t, l.StoreArtifact(ctx, runID, core.NewArtifact(core.ArtifactRejectLog, "reject_transform", map[string]int{"bad": 2})))
	require.NoError(t, l.SaveRun(ctx, run.Summary{RunID: runID, RecordingID: "rec-1", Status: run.StatusCompleted, NEpochs: 60, NBad: 2}))

	return NewServer(l, gin.TestMode), runID
}

func get(t *testing.T, s *Server, path string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	code, body := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestListRuns(t *testing.T) {
	s, runID := newTestServer(t)
	code, body := get(t, s, "/runs?limit=5")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
	runs := body["runs"].([]interface{})
	assert.Equal(t, runID.String(), runs[0].(map[string]interface{})["run_id"])

	code, _ = get(t, s, "/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetRun(t *testing.T) {
	s, runID := newTestServer(t)
	code, body := get(t, s, "/runs/"+runID.String())
	require.Equal(t, http.StatusOK, code)
	manifest := body["manifest"].(map[string]interface{})
	assert.EqualValues(t, 11, manifest["reject_seed"])

	code, body = get(t, s, "/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "not found")
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestRunArtifacts(t *testing.T) {
	s, runID := newTestServer(t)
	code, body := get(t, s, "/runs/"+runID.String()+"/artifacts")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["count"])

	code, body = get(t, s, "/runs/"+runID.String()+"/artifacts?kind=reject_log")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, body = get(t, s, "/runs/"+runID.String()+"/artifacts?offset=-1")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_PARAMETER", body["code"])

	code, _ = get(t, s, "/runs/nope/artifacts")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetArtifact(t *testing.T) {
	l := ledger.NewMemoryLedger()
	runID := core.NewRunID()
	a := core.NewArtifact(core.ArtifactExclusion, "ica_fit", map[string]interface{}{"exclude": []int{0, 2}})
	require.NoError(t, l.StoreArtifact(context.Background(), runID, a))
	s := NewServer(l, gin.TestMode)

	code, body := get(t, s, "/artifacts/"+string(a.ID))
	require.Equal(t, http.StatusOK, code)
	got := body["artifact"].(map[string]interface{})
	assert.Equal(t, "exclusion", got["kind"])

	code, _ = get(t, s, "/artifacts/missing")
	assert.Equal(t, http.StatusNotFound, code)
}
