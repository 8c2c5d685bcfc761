// the `links` command: rewrite image URLs in JSON data files after the
// repo migration, writing back only the files that changed.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// rewrites the "image" URLs in a single JSON file, in place.
// the file is only rewritten on disk if at least one URL changed.
func process_json_file(path string) (int, error) {
	doc, err := load_json_file(path)
	if err != nil {
		return 0, err
	}

	changed := rewrite_image_urls(doc)
	if changed > 0 {
		err = write_json_file(path, doc)
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

func update_links(data_root string) error {
	json_files, err := find_json_files(data_root)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d JSON files in %s\n", len(json_files), data_root)

	total_changed := 0
	for _, json_file := range json_files {
		changed, err := process_json_file(json_file)
		if err != nil {
			// one bad data file shouldn't sink the batch
			fmt.Printf("Failed to update %s: %v\n", json_file, err)
			continue
		}
		total_changed += changed
		fmt.Printf("%s: updated %d image URL(s)\n", filepath.Base(json_file), changed)
	}

	fmt.Printf("Total updated image URLs: %d\n", total_changed)
	return nil
}

func cmd_links(args []string) {
	flags := pflag.NewFlagSet("links", pflag.ExitOnError)
	data_root := flags.String("data-root", "data", "folder containing JSON data files")
	flags.Parse(args)

	data_path := resolve_path(*data_root)
	if !path_exists(data_path) {
		fmt.Printf("Data folder does not exist: %s\n", data_path)
		return
	}

	err := update_links(data_path)
	if err != nil {
		slog.Error("link update failed", "data-root", data_path, "error", err)
		os.Exit(1)
	}
}
