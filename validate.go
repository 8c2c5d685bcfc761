// the `validate` command: probe every image URL referenced by the data
// files and write a JSON report of the broken ones.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type broken_link struct {
	URL    string   `json:"url"`
	Status int      `json:"status"`
	Error  string   `json:"error"`
	Files  []string `json:"files"`
}

type link_report struct {
	TotalURLs   int           `json:"total_urls"`
	BrokenCount int           `json:"broken_count"`
	Broken      []broken_link `json:"broken"`
}

// the shape consumers of the report can rely on.
// the report is checked against this before it's written.
var REPORT_SCHEMA = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["total_urls", "broken_count", "broken"],
	"properties": {
		"total_urls": {"type": "integer", "minimum": 0},
		"broken_count": {"type": "integer", "minimum": 0},
		"broken": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["url", "status", "error", "files"],
				"properties": {
					"url": {"type": "string"},
					"status": {"type": "integer", "minimum": 0},
					"error": {"type": "string"},
					"files": {
						"type": "array",
						"items": {"type": "string"},
						"minItems": 1
					}
				}
			}
		}
	}
}`

var report_schema = jsonschema.MustCompileString("broken_image_links.schema.json", REPORT_SCHEMA)

// checks every URL in the index concurrently, surfacing results in
// completion order. broken URLs come back with the sorted list of data
// files that reference them.
func validate_urls(url_index map[string]map[string]bool, workers int) []broken_link {
	url_list := sorted_keys(url_index)
	total := len(url_list)
	fmt.Printf("Validating %d URL(s) with %d worker(s)...\n", total, workers)

	client := &http.Client{Timeout: CHECK_TIMEOUT}
	result_chan := make(chan url_status)

	var group errgroup.Group
	group.SetLimit(workers)
	go func() {
		for _, url := range url_list {
			url := url
			group.Go(func() error {
				result_chan <- check_url(client, url)
				return nil
			})
		}
		group.Wait()
		close(result_chan)
	}()

	broken := []broken_link{}
	checked := 0
	for result := range result_chan {
		checked += 1
		if !result.ok {
			broken = append(broken, broken_link{
				URL:    result.url,
				Status: result.status,
				Error:  result.err,
				Files:  sorted_keys(url_index[result.url]),
			})
		}
		if checked%50 == 0 || checked == total {
			fmt.Printf("Checked %d/%d URLs; broken so far: %d\n", checked, total, len(broken))
		}
	}

	return broken
}

// self-check: does the marshaled report match the published schema?
func validate_report(blob []byte) error {
	var doc any
	err := json.Unmarshal(blob, &doc)
	if err != nil {
		return fmt.Errorf("failed to parse report: %w", err)
	}
	return report_schema.Validate(doc)
}

// serialises the report to `path`. a schema mismatch is logged but doesn't
// discard probe results we already paid for.
func write_report(path string, report link_report) error {
	blob, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	err = validate_report(blob)
	if err != nil {
		slog.Error("report failed its own schema check", "error", err)
	}

	err = os.WriteFile(path, blob, 0644)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func cmd_validate(args []string) {
	flags := pflag.NewFlagSet("validate", pflag.ExitOnError)
	data_root := flags.String("data-root", "data", "folder containing JSON data files")
	output := flags.String("output", "broken_image_links.json", "path (relative to project root) where the report JSON will be written")
	workers := flags.Int("workers", 16, "number of parallel workers for HTTP checks")
	flags.Parse(args)

	data_path := resolve_path(*data_root)
	if !path_exists(data_path) {
		fmt.Printf("Data folder does not exist: %s\n", data_path)
		return
	}

	url_index := collect_image_urls(data_path)
	broken := validate_urls(url_index, resolve_workers(*workers))

	report := link_report{
		TotalURLs:   len(url_index),
		BrokenCount: len(broken),
		Broken:      broken,
	}

	output_path := resolve_path(*output)
	err := write_report(output_path, report)
	if err != nil {
		slog.Error("failed to write report", "path", output_path, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Written report to %s\n", output_path)
	fmt.Printf("Total URLs: %d, broken: %d\n", report.TotalURLs, report.BrokenCount)
}
