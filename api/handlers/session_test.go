package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/collabengine/broadcast"
	"github.com/BaSui01/collabengine/testutil"
	"github.com/BaSui01/collabengine/testutil/fixtures"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingObserver struct {
	open atomic.Int64
}

func (o *countingObserver) SessionOpened() { o.open.Add(1) }
func (o *countingObserver) SessionClosed() { o.open.Add(-1) }

func TestSessionHandler_DeliversAndAcknowledges(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.Hub().Register("alpha")
	observer := &countingObserver{}

	mux := http.NewServeMux()
	NewSessionHandler(e.Hub(), e, observer, zaptest.NewLogger(t)).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/agents/alpha/session"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	results := make(chan *broadcast.Result, 1)
	go func() {
		res, err := e.BroadcastMessage(ctx, fixtures.DirectiveMessage(true, "alpha"))
		assert.NoError(t, err)
		results <- res
	}()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var env broadcast.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "alpha", env.Recipient)
	assert.True(t, env.AckRequired)

	ack, err := json.Marshal(broadcast.AckFrame{
		Kind:      broadcast.AckKindAcknowledge,
		MessageID: env.MessageID,
		Recipient: "alpha",
	})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, ack))

	select {
	case res := <-results:
		require.NotNil(t, res)
		assert.Equal(t, []string{"alpha"}, res.AcknowledgmentsReceived)
	case <-ctx.Done():
		t.Fatal("broadcast did not complete")
	}
	assert.Equal(t, int64(1), observer.open.Load())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))
	testutil.AssertEventuallyEqual(t, int64(0), func() any { return observer.open.Load() }, 2*time.Second)
}

func TestSessionHandler_RejectsPlainHTTP(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	mux := http.NewServeMux()
	NewSessionHandler(e.Hub(), e, nil, zaptest.NewLogger(t)).Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents/alpha/session", nil))
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
}
