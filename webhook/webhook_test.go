package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_SignsBody(t *testing.T) {
	var gotSig string
	var gotEvent Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		assert.Equal(t, Sign("s3cret", body), gotSig)
		assert.NoError(t, json.Unmarshal(body, &gotEvent))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := NewEvent(EventJobDone, "job-1", map[string]any{"records": 3})
	require.NoError(t, Deliver(context.Background(), srv.URL, "s3cret", ev))

	assert.Contains(t, gotSig, "sha256=")
	assert.Equal(t, EventJobDone, gotEvent.Type)
	assert.Equal(t, "job-1", gotEvent.JobID)
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "", NewEvent(EventJobFailed, "j", nil)))
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", NewEvent(EventJobDone, "j", nil))
	assert.ErrorContains(t, err, "status 502")
}

func TestDeliverAsync_Retries(t *testing.T) {
	saved := retryDelays
	retryDelays = []time.Duration{0, time.Millisecond, time.Millisecond}
	defer func() { retryDelays = saved }()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	select {
	case <-DeliverAsync(srv.URL, "", NewEvent(EventJobDone, "j", nil)):
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	assert.Equal(t, int32(3), calls.Load())
}
