package gossip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/vnmarket/internal/bar"
)

type recordingMetrics struct {
	ok   int32
	fail int32
}

func (r *recordingMetrics) ObserveFanoutResult(peerKind string, ok bool) {
	if ok {
		atomic.AddInt32(&r.ok, 1)
		return
	}
	atomic.AddInt32(&r.fail, 1)
}

func TestBroadcast_InternalPeersReceiveBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := &recordingMetrics{}
	f := New(Config{InternalPeers: []string{srv.URL}, PrimaryToken: "T1", Metrics: m, Logger: zerolog.Nop()})
	f.Broadcast(context.Background(), bar.Bar{Symbol: "VCB", Close: 85.5, Time: time.Now()}, false)

	assert.Equal(t, "Bearer T1", gotAuth)
	assert.Equal(t, int32(1), atomic.LoadInt32(&m.ok))
}

func TestBroadcast_PublicPeersOnlyContactedInProduction(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(Config{PublicPeers: []string{srv.URL}, Logger: zerolog.Nop()})

	f.Broadcast(context.Background(), bar.Bar{Symbol: "VCB", Time: time.Now()}, false)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits), "non-production must not fan out to public peers")

	f.Broadcast(context.Background(), bar.Bar{Symbol: "VCB", Time: time.Now()}, true)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestBroadcast_DeadPeerFailsWithoutBlockingOthers(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	dead.Close() // closed immediately: connection refused

	m := &recordingMetrics{}
	f := New(Config{InternalPeers: []string{ok.URL, dead.URL}, Metrics: m, Logger: zerolog.Nop()})

	start := time.Now()
	f.Broadcast(context.Background(), bar.Bar{Symbol: "VCB", Time: time.Now()}, false)
	assert.Less(t, time.Since(start), 5*time.Second, "a dead peer must not stall the whole broadcast")

	assert.Equal(t, int32(1), atomic.LoadInt32(&m.ok))
	assert.Equal(t, int32(1), atomic.LoadInt32(&m.fail))
}
