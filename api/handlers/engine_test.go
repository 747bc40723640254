package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/collabengine/api"
	"github.com/BaSui01/collabengine/broadcast"
	"github.com/BaSui01/collabengine/collaboration"
	"github.com/BaSui01/collabengine/config"
	"github.com/BaSui01/collabengine/conflict"
	"github.com/BaSui01/collabengine/coordination"
	"github.com/BaSui01/collabengine/engine"
	"github.com/BaSui01/collabengine/metrics"
	"github.com/BaSui01/collabengine/negotiation"
	"github.com/BaSui01/collabengine/store"
	"github.com/BaSui01/collabengine/testutil"
	"github.com/BaSui01/collabengine/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// envelope 解码响应时 data 延迟解析
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	cfg.NegotiationRoundTimeout = 2 * time.Second
	cfg.Broadcast.InitialBackoff = time.Millisecond
	cfg.Broadcast.MaxBackoff = 5 * time.Millisecond
	cfg.Broadcast.AckTimeout = 200 * time.Millisecond

	e, err := engine.New(cfg, engine.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newTestMux(t *testing.T, e *engine.Engine) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewEngineHandler(e, zaptest.NewLogger(t)).Register(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, path, bytes.NewReader(testutil.MustJSON(t, body)))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	return testutil.MustParseJSON[T](t, env.Data)
}

func TestEngineHandler_Agents(t *testing.T) {
	t.Parallel()
	mux := newTestMux(t, newTestEngine(t))

	for _, p := range fixtures.AgentProfiles() {
		w, env := do(t, mux, http.MethodPost, "/api/v1/agents", p)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, env.Success)
	}

	w, env := do(t, mux, http.MethodPost, "/api/v1/agents", collaboration.AgentProfile{ID: "x", Availability: 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)

	_, env = do(t, mux, http.MethodGet, "/api/v1/agents", nil)
	agents := decodeData[[]collaboration.AgentProfile](t, env)
	assert.Len(t, agents, len(fixtures.AgentProfiles()))
}

func TestEngineHandler_Collaboration(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	for _, p := range fixtures.AgentProfiles() {
		require.NoError(t, e.Registry().Register(p))
	}
	mux := newTestMux(t, e)

	w, env := do(t, mux, http.MethodPost, "/api/v1/collaborations", api.CollaborationRequest{
		AgentIDs: fixtures.AgentIDs(),
		Goal:     fixtures.CollaborationGoal(),
	})
	require.Equal(t, http.StatusOK, w.Code, string(env.Data))
	plan := decodeData[collaboration.CollaborationPlan](t, env)
	assert.NotEmpty(t, plan.ID)

	_, env = do(t, mux, http.MethodGet, "/api/v1/records/"+string(store.KindCollaborationPlan)+"/"+plan.ID, nil)
	rec := decodeData[store.Record](t, env)
	assert.Equal(t, plan.ID, rec.ID)
	testutil.AssertJSONEqual(t, plan, testutil.MustParseJSON[collaboration.CollaborationPlan](t, rec.Payload))

	goal := fixtures.CollaborationGoal()
	goal.Objective = ""
	w, env = do(t, mux, http.MethodPost, "/api/v1/collaborations", api.CollaborationRequest{AgentIDs: fixtures.AgentIDs(), Goal: goal})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_GOAL", env.Error.Code)
}

func TestEngineHandler_ConflictAndOutcome(t *testing.T) {
	t.Parallel()
	mux := newTestMux(t, newTestEngine(t))

	w, env := do(t, mux, http.MethodPost, "/api/v1/conflicts", fixtures.ResourceConflict())
	require.Equal(t, http.StatusOK, w.Code)
	res := decodeData[conflict.Resolution](t, env)
	assert.Equal(t, conflict.TypeResourceCompetition, res.ConflictType)

	w, _ = do(t, mux, http.MethodPost, "/api/v1/conflicts/outcomes", api.ConflictOutcomeRequest{ConflictType: conflict.TypeResourceCompetition, Success: true})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, mux, http.MethodPost, "/api/v1/conflicts/outcomes", api.ConflictOutcomeRequest{Success: true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)

	_, env = do(t, mux, http.MethodGet, "/api/v1/metrics", nil)
	snap := decodeData[metrics.Snapshot](t, env)
	assert.Equal(t, int64(1), snap.ConflictsResolved+snap.ConflictsEscalated)
}

func TestEngineHandler_Coordination(t *testing.T) {
	t.Parallel()
	mux := newTestMux(t, newTestEngine(t))

	w, env := do(t, mux, http.MethodPost, "/api/v1/tasks", fixtures.DiamondTask())
	require.Equal(t, http.StatusOK, w.Code)
	plan := decodeData[coordination.Plan](t, env)
	assert.Len(t, plan.ExecutionSequence, 4)

	w, env = do(t, mux, http.MethodPost, "/api/v1/tasks", fixtures.CyclicTask())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "CYCLIC_DEPENDENCY", env.Error.Code)
}

func TestEngineHandler_BroadcastLedgerAndAck(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	e.Hub().Register("alpha")
	mux := newTestMux(t, e)

	w, env := do(t, mux, http.MethodPost, "/api/v1/broadcasts", fixtures.DirectiveMessage(false, "alpha"))
	require.Equal(t, http.StatusOK, w.Code)
	res := decodeData[broadcast.Result](t, env)
	assert.Equal(t, []string{"alpha"}, res.RecipientsReached)

	_, env = do(t, mux, http.MethodGet, "/api/v1/broadcasts/"+res.MessageID, nil)
	ledger := decodeData[broadcast.LedgerRecord](t, env)
	assert.True(t, ledger.Finished)

	w, env = do(t, mux, http.MethodPost, "/api/v1/broadcasts/"+res.MessageID+"/ack", api.AckRequest{Recipient: "alpha"})
	require.Equal(t, http.StatusOK, w.Code)
	ack := decodeData[api.AckResponse](t, env)
	assert.Equal(t, "ack", ack.Kind)

	w, env = do(t, mux, http.MethodPost, "/api/v1/broadcasts/"+res.MessageID+"/ack", api.AckRequest{Recipient: "alpha", ReadReceipt: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "read", decodeData[api.AckResponse](t, env).Kind)

	_, env = do(t, mux, http.MethodGet, "/api/v1/broadcasts/"+res.MessageID, nil)
	ledger = decodeData[broadcast.LedgerRecord](t, env)
	assert.False(t, ledger.Outcomes["alpha"].AcknowledgedAt.IsZero())
	assert.False(t, ledger.Outcomes["alpha"].ReadAt.IsZero())

	w, env = do(t, mux, http.MethodPost, "/api/v1/broadcasts/"+res.MessageID+"/ack", api.AckRequest{Recipient: "zulu"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, _ = do(t, mux, http.MethodPost, "/api/v1/broadcasts/"+res.MessageID+"/ack", api.AckRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, mux, http.MethodGet, "/api/v1/broadcasts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEngineHandler_BroadcastExpired(t *testing.T) {
	t.Parallel()
	mux := newTestMux(t, newTestEngine(t))

	msg := fixtures.DirectiveMessage(false, "alpha")
	msg.Delivery.ExpirationTime = time.Now().Add(-time.Minute)
	w, env := do(t, mux, http.MethodPost, "/api/v1/broadcasts", msg)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "MESSAGE_EXPIRED", env.Error.Code)
}

func TestEngineHandler_Negotiation(t *testing.T) {
	t.Parallel()
	mux := newTestMux(t, newTestEngine(t))

	w, env := do(t, mux, http.MethodPost, "/api/v1/negotiations", fixtures.PriceNegotiation(0.5, 0, 5))
	require.Equal(t, http.StatusOK, w.Code)
	res := decodeData[negotiation.Result](t, env)
	assert.NotEmpty(t, res.History)

	_, env = do(t, mux, http.MethodGet, "/api/v1/records/"+string(store.KindNegotiationResult)+"?limit=10", nil)
	recs := decodeData[[]store.Record](t, env)
	assert.Len(t, recs, 1)
}

func TestEngineHandler_Records_InvalidInput(t *testing.T) {
	t.Parallel()
	mux := newTestMux(t, newTestEngine(t))

	w, env := do(t, mux, http.MethodGet, "/api/v1/records/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)

	w, _ = do(t, mux, http.MethodGet, "/api/v1/records/"+string(store.KindBroadcastResult)+"?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, mux, http.MethodGet, "/api/v1/records/"+string(store.KindBroadcastResult)+"/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestEngineHandler_RejectsBadRequests(t *testing.T) {
	t.Parallel()
	mux := newTestMux(t, newTestEngine(t))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewBufferString(`{"id":"t"}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewBufferString(`{"id":"t","unknown":true}`))
	r.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
