package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

func main() {
	api := os.Getenv("DASHBOARD_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter a site URL to monitor (e.g., https://example.com): ")
	raw, _ := reader.ReadString('\n')
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		fmt.Println("Invalid URL.")
		return
	}

	fmt.Print("Name (optional): ")
	name, _ := reader.ReadString('\n')

	body, _ := json.Marshal(map[string]any{
		"url":  raw,
		"name": strings.TrimSpace(name),
	})
	resp, err := http.Post(api+"/api/sites", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Println("Error contacting dashboard:", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		fmt.Println("Added! The site syncs to the backend within the debounce window.")
	} else {
		fmt.Println("Dashboard returned status:", resp.Status)
	}
}
