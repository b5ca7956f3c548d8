//go:build ignore

// Seed a running docdex instance with a few well-known documentation
// sites and wait for the jobs to finish.
//
// Usage: go run scripts/seed-docs.go [-addr http://127.0.0.1:6280]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

type seed struct {
	URL      string `json:"url"`
	Library  string `json:"library"`
	Version  string `json:"version,omitempty"`
	MaxPages int    `json:"maxPages,omitempty"`
}

var seeds = []seed{
	{URL: "https://go.dev/doc/", Library: "go", Version: "1.25", MaxPages: 50},
	{URL: "https://docs.python.org/3/", Library: "python", Version: "3.13", MaxPages: 50},
	{URL: "https://react.dev/learn", Library: "react", Version: "19.0.0", MaxPages: 50},
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:6280", "docdex base URL")
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}

	var jobIDs []string
	for _, s := range seeds {
		body, _ := json.Marshal(s)
		resp, err := client.Post(*addr+"/api/jobs/scrape", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Fprintf(os.Stderr, "enqueue %s: %v\n", s.Library, err)
			os.Exit(1)
		}
		var out struct {
			Success bool   `json:"success"`
			JobID   string `json:"jobId"`
			Error   string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Fprintf(os.Stderr, "decode response for %s: %v\n", s.Library, err)
			os.Exit(1)
		}
		resp.Body.Close()
		if !out.Success {
			fmt.Fprintf(os.Stderr, "enqueue %s failed: %s\n", s.Library, out.Error)
			os.Exit(1)
		}
		fmt.Printf("enqueued %s as %s\n", s.Library, out.JobID)
		jobIDs = append(jobIDs, out.JobID)
	}

	for _, id := range jobIDs {
		for {
			resp, err := client.Get(*addr + "/api/jobs/" + id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "poll %s: %v\n", id, err)
				os.Exit(1)
			}
			var out struct {
				Job struct {
					Status   string `json:"status"`
					Error    string `json:"error"`
					Progress struct {
						PagesScraped     int `json:"pages_scraped"`
						DocumentsIndexed int `json:"documents_indexed"`
					} `json:"progress"`
				} `json:"job"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				fmt.Fprintf(os.Stderr, "decode job %s: %v\n", id, err)
				os.Exit(1)
			}
			resp.Body.Close()

			switch out.Job.Status {
			case "COMPLETED":
				fmt.Printf("%s done: %d pages, %d chunks\n",
					id, out.Job.Progress.PagesScraped, out.Job.Progress.DocumentsIndexed)
			case "FAILED", "CANCELLED":
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", id, out.Job.Status, out.Job.Error)
			default:
				time.Sleep(2 * time.Second)
				continue
			}
			break
		}
	}
}
