package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	doAdmin(http.MethodGet, adminURL(*baseURL, "/admin/v1/stats", nil), 5*time.Second)
}

func historyCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	cx := fs.Int("cx", 0, "chunk x")
	cz := fs.Int("cz", 0, "chunk z")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := url.Values{}
	q.Set("cx", strconv.Itoa(*cx))
	q.Set("cz", strconv.Itoa(*cz))
	q.Set("limit", strconv.Itoa(*limit))
	doAdmin(http.MethodGet, adminURL(*baseURL, "/admin/v1/history", q), 5*time.Second)
}

func reseedCmd(args []string) {
	fs := flag.NewFlagSet("reseed", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	seed := fs.Int64("seed", 0, "new world seed (required)")
	_ = fs.Parse(args)

	if *seed == 0 {
		fmt.Fprintln(os.Stderr, "missing -seed")
		os.Exit(2)
	}
	q := url.Values{}
	q.Set("seed", strconv.FormatInt(*seed, 10))
	doAdmin(http.MethodPost, adminURL(*baseURL, "/admin/v1/reseed", q), 10*time.Second)
}

func adminURL(base, path string, q url.Values) string {
	u := strings.TrimRight(strings.TrimSpace(base), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func doAdmin(method, u string, timeout time.Duration) {
	req, _ := http.NewRequest(method, u, nil)
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
