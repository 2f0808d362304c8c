package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelterrain.ai/internal/sim/chunkmgr"
	"voxelterrain.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index of chunk lifecycle events.
// Writes are queued to a single writer goroutine and dropped when the
// queue is full; the JSONL event log remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB
	// rdb serves queries on its own connections so reads never wait on
	// the writer's open transaction.
	rdb *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSync
)

type req struct {
	kind  reqKind
	event chunkmgr.Event
	done  chan struct{}
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DroppedTotal  uint64 `json:"dropped_total"`
}

type EventCounts struct {
	Loaded          int64 `json:"loaded"`
	Unloaded        int64 `json:"unloaded"`
	Failed          int64 `json:"failed"`
	Discarded       int64 `json:"discarded"`
	FallbackColumns int64 `json:"fallback_columns"`
	Triangles       int64 `json:"triangles"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	rdb, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	rdb.SetMaxOpenConns(4)

	s := &SQLiteIndex{
		db:  db,
		rdb: rdb,
		ch:  make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunk_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			kind TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			epoch INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			entity TEXT,
			columns INTEGER NOT NULL,
			fallback_columns INTEGER NOT NULL,
			solid INTEGER NOT NULL,
			quads INTEGER NOT NULL,
			triangles INTEGER NOT NULL,
			digest TEXT,
			duration_ms REAL NOT NULL,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_events_key ON chunk_events(cx, cz, id);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_events_kind ON chunk_events(kind);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = errors.Join(s.rdb.Close(), s.db.Close())
	})
	return err
}

// WriteChunkEvent queues ev without blocking.
func (s *SQLiteIndex) WriteChunkEvent(ev chunkmgr.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: ev}:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Sync waits until everything queued before the call is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DroppedTotal:  s.dropped.Load(),
	}
}

// UpsertTuning records the configuration the world was generated with.
func (s *SQLiteIndex) UpsertTuning(t tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows := [][2]string{
		{"schema_version", "1"},
		{"tuning", string(b)},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"updated_at", time.Now().UTC().Format(time.RFC3339Nano)},
	}
	for _, r := range rows {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, r[0], r[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.rdb.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	return v, err
}

func (s *SQLiteIndex) Counts(ctx context.Context) (EventCounts, error) {
	var c EventCounts
	rows, err := s.rdb.QueryContext(ctx, `SELECT kind, COUNT(*), COALESCE(SUM(fallback_columns),0), COALESCE(SUM(triangles),0) FROM chunk_events GROUP BY kind`)
	if err != nil {
		return c, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind        string
			n, fb, tris int64
		)
		if err := rows.Scan(&kind, &n, &fb, &tris); err != nil {
			return c, err
		}
		switch chunkmgr.EventKind(kind) {
		case chunkmgr.EventLoaded:
			c.Loaded = n
			c.FallbackColumns = fb
			c.Triangles = tris
		case chunkmgr.EventUnloaded:
			c.Unloaded = n
		case chunkmgr.EventFailed:
			c.Failed = n
		case chunkmgr.EventDiscarded:
			c.Discarded = n
		}
	}
	return c, rows.Err()
}

// History returns the newest events for one chunk, newest first.
func (s *SQLiteIndex) History(ctx context.Context, cx, cz, limit int) ([]chunkmgr.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.rdb.QueryContext(ctx, `SELECT ts, kind, epoch, seed, COALESCE(entity,''), columns, fallback_columns, solid, quads, triangles, COALESCE(digest,''), duration_ms, COALESCE(error,'')
		FROM chunk_events WHERE cx = ? AND cz = ? ORDER BY id DESC LIMIT ?`, cx, cz, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chunkmgr.Event
	for rows.Next() {
		ev := chunkmgr.Event{CX: cx, CZ: cz}
		var ts, kind string
		var epoch int64
		if err := rows.Scan(&ts, &kind, &epoch, &ev.Seed, &ev.Entity, &ev.Columns, &ev.FallbackColumns, &ev.Solid, &ev.Quads, &ev.Triangles, &ev.Digest, &ev.DurationMS, &ev.Error); err != nil {
			return nil, err
		}
		ev.Kind = chunkmgr.EventKind(kind)
		ev.Epoch = uint64(epoch)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.Time = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT INTO chunk_events(ts,kind,cx,cz,epoch,seed,entity,columns,fallback_columns,solid,quads,triangles,digest,duration_ms,error) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil || insertEvent == nil {
			continue
		}
		ev := r.event
		if _, err := tx.Stmt(insertEvent).Exec(
			ev.Time.UTC().Format(time.RFC3339Nano),
			string(ev.Kind),
			ev.CX, ev.CZ,
			int64(ev.Epoch),
			ev.Seed,
			nullString(ev.Entity),
			ev.Columns,
			ev.FallbackColumns,
			ev.Solid,
			ev.Quads,
			ev.Triangles,
			nullString(ev.Digest),
			ev.DurationMS,
			nullString(ev.Error),
		); err != nil {
			rollback()
			continue
		}
		opCount++
		// Commit once the queue drains so no transaction idles open.
		if opCount >= commitEvery || len(s.ch) == 0 || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
