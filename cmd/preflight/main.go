// cmd/preflight/main.go
package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	base := strings.TrimSpace(os.Getenv("BACKEND_BASE_URL"))
	apiAddr := strings.TrimSpace(os.Getenv("API_ADDR"))
	logDir := strings.TrimSpace(os.Getenv("LOG_DIR"))

	if base == "" {
		warn("BACKEND_BASE_URL empty — the default http://127.0.0.1:9100 will be used.")
		base = "http://127.0.0.1:9100"
	} else {
		if _, err := url.ParseRequestURI(base); err != nil {
			fail("BACKEND_BASE_URL is not a valid URL: " + base)
		}
		ok("BACKEND_BASE_URL=" + base)
	}

	// Probe the backend's site list so a dead backend is caught before the
	// dashboard starts polling it.
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + "/sites")
	if err != nil {
		warn("backend unreachable: " + err.Error() + " — the dashboard starts anyway and retries.")
	} else {
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			warn("backend answered " + resp.Status + " on /sites")
		} else {
			ok("backend reachable (" + resp.Status + ")")
		}
	}

	if apiAddr == "" {
		warn("API_ADDR empty; default in your config may be used.")
	} else {
		ok("API_ADDR=" + apiAddr)
	}

	if logDir == "" {
		warn("LOG_DIR empty — logs default to ./logs.")
	} else if info, err := os.Stat(logDir); err == nil && !info.IsDir() {
		fail("LOG_DIR exists but is not a directory: " + logDir)
	} else {
		ok("LOG_DIR=" + logDir)
	}

	ok("preflight passed")
}
