// recursive JSON traversal shared by the `links` and `validate` commands:
// finding "image" fields, rewriting them after the repo migration and
// collecting them for liveness checks.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// the original cs2-WeaponPaints repo hosts PNGs under website/img,
// the optimised repo hosts WebPs under img.
var OLD_BASE = "https://raw.githubusercontent.com/Nereziel/cs2-WeaponPaints/main/website/img/"
var NEW_BASE = "https://raw.githubusercontent.com/agasking1337/Optimised-WeaponPaints/master/img/"

// walks a JSON value decoded into `any`, depth-first, calling `visit` on
// every object node exactly once. recurses into object and array children
// whether or not the current node was interesting to the visitor.
func walk_objects(node any, visit func(obj map[string]any)) {
	switch val := node.(type) {
	case map[string]any:
		visit(val)
		for _, child := range val {
			walk_objects(child, visit)
		}
	case []any:
		for _, child := range val {
			walk_objects(child, visit)
		}
	}
}

// rewrites an image URL from the old repo to the new one, swapping the .png
// extension for .webp. URLs outside OLD_BASE are returned unchanged, which
// also makes the rewrite idempotent.
func convert_url(url string) string {
	if !strings.HasPrefix(url, OLD_BASE) {
		return url
	}
	rel := url[len(OLD_BASE):]
	if strings.HasSuffix(rel, ".png") {
		rel = rel[:len(rel)-len(".png")] + ".webp"
	}
	return NEW_BASE + rel
}

// reads and decodes the JSON file at `path` into `any`.
// data files exported from the upstream repo occasionally carry a BOM.
func load_json_file(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	raw, err = elide_bom(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to strip byte-order mark: %w", err)
	}

	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("file is not valid JSON: %s", path)
	}

	var doc any
	err = json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return doc, nil
}

// writes `doc` back to `path` as compact JSON.
func write_json_file(path string, doc any) error {
	blob, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	err = os.WriteFile(path, blob, 0644)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// rewrites every "image" field in `doc` in place,
// returning the number of fields that actually changed.
func rewrite_image_urls(doc any) int {
	changed := 0
	walk_objects(doc, func(obj map[string]any) {
		old_url, is_str := obj["image"].(string)
		if !is_str {
			return
		}
		new_url := convert_url(old_url)
		if new_url != old_url {
			obj["image"] = new_url
			changed += 1
		}
	})
	return changed
}

// records every http(s) "image" URL in `doc` against `filename`.
// the index maps a unique URL to the set of file names referencing it.
func collect_image_urls_from_doc(doc any, filename string, url_index map[string]map[string]bool) {
	walk_objects(doc, func(obj map[string]any) {
		url, is_str := obj["image"].(string)
		if !is_str || !strings.HasPrefix(url, "http") {
			return
		}
		file_set, present := url_index[url]
		if !present {
			file_set = map[string]bool{}
			url_index[url] = file_set
		}
		file_set[filename] = true
	})
}

// returns the `*.json` files directly under `data_root`, sorted by name.
func find_json_files(data_root string) ([]string, error) {
	json_files, err := filepath.Glob(filepath.Join(data_root, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list JSON files: %w", err)
	}
	return json_files, nil
}

// builds the URL-to-files index for every JSON file under `data_root`.
// unreadable or malformed files are reported and skipped.
func collect_image_urls(data_root string) map[string]map[string]bool {
	url_index := map[string]map[string]bool{}

	json_files, err := find_json_files(data_root)
	if err != nil {
		slog.Error("failed to list data files", "data-root", data_root, "error", err)
		return url_index
	}
	fmt.Printf("Found %d JSON files in %s\n", len(json_files), data_root)

	for _, json_file := range json_files {
		doc, err := load_json_file(json_file)
		if err != nil {
			fmt.Printf("Failed to read JSON from %s: %v\n", json_file, err)
			continue
		}
		collect_image_urls_from_doc(doc, filepath.Base(json_file), url_index)
	}

	fmt.Printf("Collected %d unique image URL(s)\n", len(url_index))
	return url_index
}
