package export

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"briefly/internal/api"
	"briefly/internal/conversation"
	"briefly/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generatedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testSnapshot() conversation.Snapshot {
	return conversation.Snapshot{
		Entries: []conversation.Entry{
			{Sender: conversation.SenderBot, Message: "Bienvenido", Timestamp: "2026-03-14T09:29:00Z"},
			{Sender: conversation.SenderUser, Message: "obtener resumen", Timestamp: "2026-03-14T09:29:30Z"},
		},
		Session:     &conversation.SessionMeta{SessionID: "s-1", DocumentName: "informe.pdf", TotalPages: 9, TotalBlocks: 3},
		GeneratedAt: generatedAt,
	}
}

func newClient(t *testing.T, h http.Handler) *api.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := api.NewClient(srv.URL)
	require.NoError(t, err)
	return c
}

func newExporter(remote Remote, opts Options) *Exporter {
	opts.Delay = time.Millisecond
	e := New(remote, opts)
	e.loc = time.UTC
	return e
}

// fakeRemote lets tests control IsLocal independently of the server address.
type fakeRemote struct {
	local     bool
	prepared  string
	prepErr   error
	failUntil int32
	calls     atomic.Int32
	body      string
}

func (f *fakeRemote) PrepareDownload(ctx context.Context, sessionID string, entries []conversation.Entry) (string, error) {
	return f.prepared, f.prepErr
}

func (f *fakeRemote) Download(ctx context.Context, filename string, w io.Writer) (int64, error) {
	n := f.calls.Add(1)
	if n <= f.failUntil {
		_, _ = io.WriteString(w, "partial")
		return 0, errors.New("connection reset")
	}
	m, err := io.WriteString(w, f.body)
	return int64(m), err
}

func (f *fakeRemote) IsLocal() bool { return f.local }

func TestResolve(t *testing.T) {
	assert.Equal(t, ModeLocal, Resolve(ModeAuto, true))
	assert.Equal(t, ModeRemote, Resolve(ModeAuto, false))
	assert.Equal(t, ModeRemote, Resolve("", false))
	assert.Equal(t, ModeRemote, Resolve(ModeRemote, true))
	assert.Equal(t, ModeLocal, Resolve(ModeLocal, false))
}

func TestExport_Empty(t *testing.T) {
	e := newExporter(nil, Options{Dir: t.TempDir()})
	_, err := e.Export(context.Background(), conversation.Snapshot{GeneratedAt: generatedAt})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestExport_Local(t *testing.T) {
	dir := t.TempDir()
	e := newExporter(nil, Options{Mode: ModeRemote, Dir: dir})
	assert.Equal(t, ModeLocal, e.Mode(), "no remote forces local")

	snap := testSnapshot()
	res, err := e.Export(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, res.Mode)
	assert.False(t, res.Fallback)
	assert.Equal(t, filepath.Join(dir, "Briefly_Conversacion_2026-03-14_09-30.txt"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, len(data), int(res.Bytes))
	text := string(data)
	assert.True(t, strings.HasPrefix(text, conversation.TranscriptTitle))
	assert.Contains(t, text, "Documento: informe.pdf")
	assert.Contains(t, text, "[09:29:30] Usuario: obtener resumen")
	assert.Len(t, snap.Entries, 2)
}

func TestExport_AutoUsesLocalForLoopbackServer(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	e := newExporter(c, Options{Mode: ModeAuto, Dir: t.TempDir()})

	res, err := e.Export(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, res.Mode)
	assert.Zero(t, hits.Load())
}

func TestExport_Remote(t *testing.T) {
	const served = "# Conversación con Briefly PDF Assistant\nrendered by server\n"
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/download-conversation":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"success":true,"filename":"conversation_s-1.txt"}`)
		case "/api/download/conversation_s-1.txt":
			_, _ = io.WriteString(w, served)
		default:
			http.NotFound(w, r)
		}
	}))
	dir := t.TempDir()
	e := newExporter(c, Options{Mode: ModeRemote, Dir: dir})

	res, err := e.Export(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, ModeRemote, res.Mode)
	assert.Equal(t, filepath.Join(dir, "conversation_s-1.txt"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, served, string(data))
}

func TestExport_RemoteFailureFallsBackToLocal(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"success":false,"message":"no disponible"}`)
	}))
	dir := t.TempDir()
	e := newExporter(c, Options{Mode: ModeRemote, Dir: dir})

	res, err := e.Export(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, res.Mode)
	assert.True(t, res.Fallback)
	msg, ok := api.BackendMessage(res.RemoteErr)
	assert.True(t, ok)
	assert.Equal(t, "no disponible", msg)
	assert.FileExists(t, filepath.Join(dir, "Briefly_Conversacion_2026-03-14_09-30.txt"))
}

func TestExport_RetriesDownload(t *testing.T) {
	f := &fakeRemote{prepared: "t.txt", failUntil: 2, body: "final"}
	dir := t.TempDir()
	e := newExporter(f, Options{Mode: ModeRemote, Dir: dir})

	res, err := e.Export(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, ModeRemote, res.Mode)
	assert.EqualValues(t, 3, f.calls.Load())

	data, err := os.ReadFile(filepath.Join(dir, "t.txt"))
	require.NoError(t, err)
	assert.Equal(t, "final", string(data), "partial attempts are discarded")
}

func TestExport_RetriesExhaustedFallsBack(t *testing.T) {
	f := &fakeRemote{prepared: "t.txt", failUntil: 100, body: "never"}
	e := newExporter(f, Options{Mode: ModeRemote, Dir: t.TempDir(), Attempts: 2})

	res, err := e.Export(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.EqualValues(t, 2, f.calls.Load())
	assert.ErrorContains(t, res.RemoteErr, "connection reset")
}

func TestExport_RejectsBadRemoteName(t *testing.T) {
	f := &fakeRemote{prepared: "/", body: "x"}
	e := newExporter(f, Options{Mode: ModeRemote, Dir: t.TempDir()})

	res, err := e.Export(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Zero(t, f.calls.Load())
}

func TestExport_Archives(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "briefly.db"))
	require.NoError(t, err)
	defer s.Close()

	e := newExporter(nil, Options{Dir: t.TempDir(), Archive: s})
	res, err := e.Export(context.Background(), testSnapshot())
	require.NoError(t, err)
	require.NotEmpty(t, res.ArchiveID)

	got, err := s.Get(context.Background(), res.ArchiveID)
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.SessionID)
	assert.Equal(t, "informe.pdf", got.DocumentName)
	assert.Equal(t, "Briefly_Conversacion_2026-03-14_09-30.txt", got.FileName)
	assert.Equal(t, 2, got.EntryCount)
	assert.Contains(t, got.Content, "Bienvenido")
}

type failingArchive struct{}

func (failingArchive) Save(ctx context.Context, t store.Transcript) (store.Transcript, error) {
	return store.Transcript{}, errors.New("disk full")
}

func TestExport_ArchiveFailureIsNotFatal(t *testing.T) {
	e := newExporter(nil, Options{Dir: t.TempDir(), Archive: failingArchive{}})
	res, err := e.Export(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Empty(t, res.ArchiveID)
	assert.FileExists(t, res.Path)
}
