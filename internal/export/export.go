// Package export delivers conversation transcripts to disk.
//
// Remote export asks the backend to render the transcript and downloads the
// result; any failure there falls back to rendering locally. Every written
// transcript is optionally archived.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"briefly/internal/conversation"
	"briefly/internal/logging"
	"briefly/internal/store"

	"github.com/avast/retry-go/v4"
)

// Modes accepted by Resolve. They match config.Export.Mode values.
const (
	ModeAuto   = "auto"
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// ErrEmpty is returned when the snapshot has no entries.
var ErrEmpty = errors.New("nothing to export")

// Remote is the backend surface used for server-side rendering.
type Remote interface {
	PrepareDownload(ctx context.Context, sessionID string, entries []conversation.Entry) (string, error)
	Download(ctx context.Context, filename string, w io.Writer) (int64, error)
	IsLocal() bool
}

// Archive stores written transcripts.
type Archive interface {
	Save(ctx context.Context, t store.Transcript) (store.Transcript, error)
}

// Result describes a finished export.
type Result struct {
	Path     string
	Mode     string // mode actually used: remote or local
	Fallback bool   // remote was attempted and failed
	Bytes    int64

	// RemoteErr is the reason for a fallback.
	RemoteErr error

	// ArchiveID is set when the transcript was archived.
	ArchiveID string
}

// Options configures an Exporter.
type Options struct {
	Mode    string
	Dir     string
	Archive Archive

	// Download retries; zero values mean 3 attempts and 300ms.
	Attempts uint
	Delay    time.Duration
}

// Exporter writes transcripts using the configured mode.
type Exporter struct {
	remote   Remote
	archive  Archive
	mode     string
	dir      string
	attempts uint
	delay    time.Duration
	loc      *time.Location
}

// New creates an exporter. remote may be nil, which forces local export.
func New(remote Remote, opts Options) *Exporter {
	e := &Exporter{
		remote:   remote,
		archive:  opts.Archive,
		mode:     opts.Mode,
		dir:      opts.Dir,
		attempts: opts.Attempts,
		delay:    opts.Delay,
		loc:      time.Local,
	}
	if e.dir == "" {
		e.dir = "."
	}
	if e.attempts == 0 {
		e.attempts = 3
	}
	if e.delay <= 0 {
		e.delay = 300 * time.Millisecond
	}
	return e
}

// Resolve maps a configured mode to remote or local. Auto picks remote unless
// the backend runs on this machine.
func Resolve(mode string, backendIsLocal bool) string {
	switch mode {
	case ModeLocal:
		return ModeLocal
	case ModeRemote:
		return ModeRemote
	default:
		if backendIsLocal {
			return ModeLocal
		}
		return ModeRemote
	}
}

// Mode returns the mode the next export will try first.
func (e *Exporter) Mode() string {
	if e.remote == nil {
		return ModeLocal
	}
	return Resolve(e.mode, e.remote.IsLocal())
}

// Export writes snap to the export directory. The snapshot is read only.
func (e *Exporter) Export(ctx context.Context, snap conversation.Snapshot) (Result, error) {
	if len(snap.Entries) == 0 {
		return Result{}, ErrEmpty
	}
	log := logging.Get(logging.CategoryExport)

	if e.Mode() == ModeRemote {
		res, content, err := e.exportRemote(ctx, snap)
		if err == nil {
			e.archiveResult(ctx, snap, &res, content)
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		log.Warn("remote export failed, falling back to local: %v", err)
		res, content, lerr := e.exportLocal(snap)
		if lerr != nil {
			return Result{}, lerr
		}
		res.Fallback = true
		res.RemoteErr = err
		e.archiveResult(ctx, snap, &res, content)
		return res, nil
	}

	res, content, err := e.exportLocal(snap)
	if err != nil {
		return Result{}, err
	}
	e.archiveResult(ctx, snap, &res, content)
	return res, nil
}

func (e *Exporter) exportRemote(ctx context.Context, snap conversation.Snapshot) (Result, []byte, error) {
	var sessionID string
	if snap.Session != nil {
		sessionID = snap.Session.SessionID
	}

	filename, err := e.remote.PrepareDownload(ctx, sessionID, snap.Entries)
	if err != nil {
		return Result{}, nil, err
	}
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return Result{}, nil, fmt.Errorf("download: invalid file name %q", filename)
	}

	var buf bytes.Buffer
	err = retry.Do(
		func() error {
			buf.Reset()
			_, err := e.remote.Download(ctx, filename, &buf)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(e.attempts),
		retry.Delay(e.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logging.Get(logging.CategoryExport).Debug("download %s attempt %d failed: %v", filename, n+1, err)
		}),
	)
	if err != nil {
		return Result{}, nil, err
	}

	path, err := e.write(name, buf.Bytes())
	if err != nil {
		return Result{}, nil, err
	}
	logging.Export("remote export saved to %s (%d bytes)", path, buf.Len())
	return Result{Path: path, Mode: ModeRemote, Bytes: int64(buf.Len())}, buf.Bytes(), nil
}

func (e *Exporter) exportLocal(snap conversation.Snapshot) (Result, []byte, error) {
	var buf bytes.Buffer
	if err := snap.WriteText(&buf, e.loc); err != nil {
		return Result{}, nil, fmt.Errorf("render transcript: %w", err)
	}
	path, err := e.write(conversation.FileName(snap.GeneratedAt.In(e.loc)), buf.Bytes())
	if err != nil {
		return Result{}, nil, err
	}
	logging.Export("local export saved to %s (%d entries)", path, len(snap.Entries))
	return Result{Path: path, Mode: ModeLocal, Bytes: int64(buf.Len())}, buf.Bytes(), nil
}

func (e *Exporter) write(name string, data []byte) (string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return path, nil
}

// archiveResult records the transcript. Archive failures do not fail the export.
func (e *Exporter) archiveResult(ctx context.Context, snap conversation.Snapshot, res *Result, content []byte) {
	if e.archive == nil {
		return
	}
	t := store.Transcript{
		FileName:   filepath.Base(res.Path),
		Content:    string(content),
		EntryCount: len(snap.Entries),
		CreatedAt:  snap.GeneratedAt,
	}
	if snap.Session != nil {
		t.SessionID = snap.Session.SessionID
		t.DocumentName = snap.Session.DocumentName
	}
	saved, err := e.archive.Save(ctx, t)
	if err != nil {
		logging.Get(logging.CategoryExport).Warn("archive transcript: %v", err)
		return
	}
	res.ArchiveID = saved.ID
}
