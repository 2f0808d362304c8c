package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd queries a world's chunk index directly. The server may keep writing
// to it; WAL mode lets readers proceed.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	kind := fs.String("kind", "", "event kind filter (events)")
	_ = fs.Parse(args)

	q := "counts"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "chunks.sqlite")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "meta":
		rows, err := db.Query(`SELECT key, value FROM meta ORDER BY key`)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := rows.Scan(&r.Key, &r.Value); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "counts":
		rows, err := db.Query(`SELECT kind, COUNT(*), COALESCE(SUM(fallback_columns),0), COALESCE(SUM(triangles),0) FROM chunk_events GROUP BY kind ORDER BY kind`)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Kind            string `json:"kind"`
				Events          int64  `json:"events"`
				FallbackColumns int64  `json:"fallback_columns"`
				Triangles       int64  `json:"triangles"`
			}
			if err := rows.Scan(&r.Kind, &r.Events, &r.FallbackColumns, &r.Triangles); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "events":
		query := `SELECT ts, kind, cx, cz, epoch, seed, COALESCE(digest,''), duration_ms, COALESCE(error,'') FROM chunk_events`
		qargs := []any{}
		if k := strings.ToUpper(strings.TrimSpace(*kind)); k != "" {
			query += ` WHERE kind=?`
			qargs = append(qargs, k)
		}
		query += ` ORDER BY id DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				TS         string  `json:"ts"`
				Kind       string  `json:"kind"`
				CX         int     `json:"cx"`
				CZ         int     `json:"cz"`
				Epoch      int64   `json:"epoch"`
				Seed       int64   `json:"seed"`
				Digest     string  `json:"digest,omitempty"`
				DurationMS float64 `json:"duration_ms"`
				Error      string  `json:"error,omitempty"`
			}
			if err := rows.Scan(&r.TS, &r.Kind, &r.CX, &r.CZ, &r.Epoch, &r.Seed, &r.Digest, &r.DurationMS, &r.Error); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "slowest":
		rows, err := db.Query(`SELECT cx, cz, epoch, duration_ms, fallback_columns FROM chunk_events WHERE kind='LOADED' ORDER BY duration_ms DESC LIMIT ?`, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				CX              int     `json:"cx"`
				CZ              int     `json:"cz"`
				Epoch           int64   `json:"epoch"`
				DurationMS      float64 `json:"duration_ms"`
				FallbackColumns int     `json:"fallback_columns"`
			}
			if err := rows.Scan(&r.CX, &r.CZ, &r.Epoch, &r.DurationMS, &r.FallbackColumns); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(meta|counts|events|slowest)")
		os.Exit(2)
	}
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
