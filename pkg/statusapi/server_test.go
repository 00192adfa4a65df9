package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/chuck/pkg/logging"
	"github.com/ZentaChain/chuck/pkg/meshstorage"
	"github.com/ZentaChain/chuck/pkg/network"
	"github.com/ZentaChain/chuck/pkg/storage"
)

func init() {
	logging.ConfigureTests()
}

type fixedServer network.ServerStats

func (f fixedServer) Stats() network.ServerStats { return network.ServerStats(f) }

type fixedRouter network.RouterStats

func (f fixedRouter) Stats() network.RouterStats { return network.RouterStats(f) }

type fakeJournal struct {
	entries []storage.Entry
	err     error
	limit   int
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]storage.Entry, error) {
	f.limit = limit
	if limit < len(f.entries) {
		return f.entries[:limit], f.err
	}
	return f.entries, f.err
}

func (f *fakeJournal) Counts(context.Context) (map[network.Outcome]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	counts := make(map[network.Outcome]int64)
	for _, e := range f.entries {
		counts[e.Outcome]++
	}
	return counts, nil
}

type fakeContent struct {
	storage *meshstorage.LocalStorage
}

func (f fakeContent) Storage() *meshstorage.LocalStorage { return f.storage }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New("127.0.0.1:0", Sources{})

	rec := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestDispatchStats(t *testing.T) {
	journal := &fakeJournal{entries: []storage.Entry{
		{ID: 1, Outcome: network.OutcomeHandled},
		{ID: 2, Outcome: network.OutcomeFailed},
		{ID: 3, Outcome: network.OutcomeHandled},
	}}
	s := New("127.0.0.1:0", Sources{
		Server:  fixedServer{ConnectionsAccepted: 4, FramesAccepted: 3, FramesRejected: 1},
		Router:  fixedRouter{Handled: 2, Failed: 1},
		Journal: journal,
	})

	rec := get(t, s.Handler(), "/api/v1/dispatch/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DispatchStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Server)
	require.NotNil(t, resp.Router)
	assert.Equal(t, uint64(3), resp.Server.FramesAccepted)
	assert.Equal(t, uint64(1), resp.Server.FramesRejected)
	assert.Equal(t, uint64(2), resp.Router.Handled)
	assert.Equal(t, int64(2), resp.Journal[network.OutcomeHandled])
}

func TestDispatchStatsOmitsMissingSources(t *testing.T) {
	s := New("127.0.0.1:0", Sources{Router: fixedRouter{Skipped: 7}})

	rec := get(t, s.Handler(), "/api/v1/dispatch/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "server")
	assert.NotContains(t, raw, "journal")
	assert.Contains(t, raw, "router")
}

func TestJournalEndpoint(t *testing.T) {
	journal := &fakeJournal{}
	for i := range 5 {
		journal.entries = append(journal.entries, storage.Entry{ID: int64(5 - i), Topic: "transfer-ticket", Outcome: network.OutcomeHandled})
	}
	s := New("127.0.0.1:0", Sources{Journal: journal})

	rec := get(t, s.Handler(), "/api/v1/dispatch/journal?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JournalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, int64(5), resp.Entries[0].ID)

	get(t, s.Handler(), "/api/v1/dispatch/journal?limit=50000")
	assert.Equal(t, MaxJournalLimit, journal.limit)

	get(t, s.Handler(), "/api/v1/dispatch/journal")
	assert.Equal(t, 100, journal.limit)
}

func TestJournalEndpointErrors(t *testing.T) {
	disabled := New("127.0.0.1:0", Sources{})
	assert.Equal(t, http.StatusNotFound, get(t, disabled.Handler(), "/api/v1/dispatch/journal").Code)

	s := New("127.0.0.1:0", Sources{Journal: &fakeJournal{}})
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/v1/dispatch/journal?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/v1/dispatch/journal?limit=-1").Code)

	broken := New("127.0.0.1:0", Sources{Journal: &fakeJournal{err: errors.New("disk gone")}})
	assert.Equal(t, http.StatusInternalServerError, get(t, broken.Handler(), "/api/v1/dispatch/journal").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, broken.Handler(), "/api/v1/dispatch/stats").Code)
}

func TestJournalEndpointWithSQLite(t *testing.T) {
	journal, err := storage.NewJournal(filepath.Join(t.TempDir(), "journal.db"), 0)
	require.NoError(t, err)
	defer journal.Close()

	require.NoError(t, journal.Record(context.Background(), network.Receipt{Size: 42, Outcome: network.OutcomeSkipped}))

	s := New("127.0.0.1:0", Sources{Journal: journal})
	rec := get(t, s.Handler(), "/api/v1/dispatch/journal")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JournalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, 42, resp.Entries[0].Size)
	assert.Equal(t, network.OutcomeSkipped, resp.Entries[0].Outcome)
}

func TestContentStats(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, get(t, New("", Sources{}).Handler(), "/api/v1/content/stats").Code)

	local, err := meshstorage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	defer local.Close()

	s := New("", Sources{Content: fakeContent{storage: local}})
	rec := get(t, s.Handler(), "/api/v1/content/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ContentStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Storage)
	assert.Zero(t, resp.Storage.Contents)
	assert.Equal(t, meshstorage.CurrentVersion, resp.Version.Version)
}

func del(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDeleteContent(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, del(t, New("", Sources{}).Handler(), "/api/v1/content/bafk").Code)

	local, err := meshstorage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	defer local.Close()

	shards := make([][]byte, meshstorage.TotalShards)
	for i := range shards {
		shards[i] = []byte{byte(i)}
	}
	require.NoError(t, local.Put(meshstorage.Manifest{
		CID:          "bafk-status",
		Size:         10,
		ShardSize:    1,
		DataShards:   meshstorage.DataShards,
		ParityShards: meshstorage.ParityShards,
	}, shards))

	h := New("", Sources{Content: fakeContent{storage: local}}).Handler()

	assert.Equal(t, http.StatusBadRequest, del(t, h, "/api/v1/content/bafk-status/shards/15").Code)
	assert.Equal(t, http.StatusBadRequest, del(t, h, "/api/v1/content/bafk-status/shards/x").Code)
	assert.Equal(t, http.StatusNoContent, del(t, h, "/api/v1/content/bafk-status/shards/3").Code)
	assert.Equal(t, http.StatusNotFound, del(t, h, "/api/v1/content/bafk-status/shards/3").Code)

	stats, err := local.GetStats()
	require.NoError(t, err)
	assert.Equal(t, meshstorage.TotalShards-1, stats.Shards)

	assert.Equal(t, http.StatusNoContent, del(t, h, "/api/v1/content/bafk-status").Code)
	assert.Equal(t, http.StatusNotFound, del(t, h, "/api/v1/content/bafk-status").Code)

	_, err = local.GetManifest("bafk-status")
	assert.ErrorIs(t, err, meshstorage.ErrNotFound)
}

func TestMetrics(t *testing.T) {
	local, err := meshstorage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	defer local.Close()

	s := New("", Sources{
		Server:  fixedServer{ConnectionsAccepted: 4, ConnectionsActive: 1, FramesAccepted: 3},
		Router:  fixedRouter{Handled: 2, Failed: 1},
		Content: fakeContent{storage: local},
	})

	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/health").Code)

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "chuck_server_frames_accepted_total 3")
	assert.Contains(t, body, "chuck_server_connections_active 1")
	assert.Contains(t, body, `chuck_dispatch_envelopes_total{outcome="failed"} 1`)
	assert.Contains(t, body, `chuck_dispatch_envelopes_total{outcome="handled"} 2`)
	assert.Contains(t, body, "chuck_content_items 0")
	assert.Contains(t, body, `chuck_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestMetricsPerServer(t *testing.T) {
	// each server owns its registry, so building two must not panic
	first := New("", Sources{Router: fixedRouter{Skipped: 1}})
	second := New("", Sources{Router: fixedRouter{Skipped: 5}})

	assert.Contains(t, get(t, first.Handler(), "/metrics").Body.String(),
		`chuck_dispatch_envelopes_total{outcome="skipped"} 1`)
	assert.Contains(t, get(t, second.Handler(), "/metrics").Body.String(),
		`chuck_dispatch_envelopes_total{outcome="skipped"} 5`)
}

func TestStartStopsOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", Sources{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	require.NoError(t, <-done)
}

func TestStartReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := New(ln.Addr().String(), Sources{})
	assert.Error(t, s.Start(context.Background()))
}

func TestStaticServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meme.txt"), []byte("such bytes"), 0644))

	s := NewStatic(StaticConfig{Dir: dir})
	assert.False(t, s.TLS())

	rec := get(t, s.Handler(), "/foo")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi from /foo", rec.Body.String())

	rec = get(t, s.Handler(), "/meme.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "such bytes", rec.Body.String())

	rec = get(t, s.Handler(), "/assets/meme.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "such bytes", rec.Body.String())

	rec = get(t, s.Handler(), "/missing.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tls := NewStatic(StaticConfig{Dir: dir, CertFile: "cert.pem", KeyFile: "key.pem"})
	assert.True(t, tls.TLS())
}
