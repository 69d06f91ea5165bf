package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegprep/adapters/ledger"
	"eegprep/domain/core"
	"eegprep/domain/stage"
)

func TestEventHub_DeliversByRun(t *testing.T) {
	hub := NewEventHub()
	defer hub.Close()

	runID := core.NewRunID()
	other := core.NewRunID()
	mine, cancelMine := hub.Subscribe(string(runID))
	defer cancelMine()
	all, cancelAll := hub.Subscribe("")
	defer cancelAll()
	require.Eventually(t, func() bool {
		return hub.ClientCount(string(runID)) == 1 && hub.ClientCount("") == 1
	}, time.Second, 5*time.Millisecond)

	hub.StageFinished(stage.StageEvent{RunID: other, Stage: stage.StageHighpass, Success: true})
	hub.StageFinished(stage.StageEvent{RunID: runID, Stage: stage.StageEpoching, Success: true})

	select {
	case ev := <-mine:
		assert.Equal(t, runID, ev.RunID)
		assert.Equal(t, stage.StageEpoching, ev.Stage)
	case <-time.After(time.Second):
		t.Fatal("no event for subscribed run")
	}

	var seen []stage.StageName
	for len(seen) < 2 {
		select {
		case ev := <-all:
			seen = append(seen, ev.Stage)
		case <-time.After(time.Second):
			t.Fatalf("wildcard subscriber saw %v", seen)
		}
	}
	assert.Equal(t, []stage.StageName{stage.StageHighpass, stage.StageEpoching}, seen)
}

func TestEventHub_Unsubscribe(t *testing.T) {
	hub := NewEventHub()
	defer hub.Close()

	_, cancel := hub.Subscribe("")
	require.Eventually(t, func() bool { return hub.ClientCount("") == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return hub.ClientCount("") == 0 }, time.Second, 5*time.Millisecond)
}

func TestEventsRejectsBadRunID(t *testing.T) {
	s := NewServer(ledger.NewMemoryLedger(), gin.TestMode)
	hub := NewEventHub()
	defer hub.Close()
	s.EnableRuns(hub, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events?run_id=%20%20", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLaunch(t *testing.T) {
	s := NewServer(ledger.NewMemoryLedger(), gin.TestMode)
	got := make(chan LaunchRequest, 1)
	s.EnableRuns(nil, func(req LaunchRequest) (RunJob, error) {
		return func(context.Context) error {
			got <- req
			return nil
		}, nil
	})

	w := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"seed": 7, "params": {"highpass": 0.5}}`)
	req := httptest.NewRequest(http.MethodPost, "/runs", body)
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case r := <-got:
		assert.Equal(t, int64(7), r.Seed)
		assert.Equal(t, float64(defaultDuration), r.Duration)
		assert.JSONEq(t, `{"highpass": 0.5}`, string(r.Params))
	case <-time.After(time.Second):
		t.Fatal("launcher not called")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/runs", bytes.NewBufferString(`{"duration": -1}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLaunch_RejectedBeforeAccepting(t *testing.T) {
	s := NewServer(ledger.NewMemoryLedger(), gin.TestMode)
	started := make(chan struct{}, 1)
	s.EnableRuns(nil, func(req LaunchRequest) (RunJob, error) {
		if strings.Contains(string(req.Params), "hipass") {
			return nil, fmt.Errorf("%w: unknown field \"hipass\"", core.ErrInvalidParameter)
		}
		return func(context.Context) error {
			started <- struct{}{}
			return nil
		}, nil
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewBufferString(`{"params": {"hipass": 1}}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_PARAMETER")
	assert.Contains(t, w.Body.String(), "hipass")
	select {
	case <-started:
		t.Fatal("rejected request must not start a run")
	case <-time.After(50 * time.Millisecond):
	}
}
