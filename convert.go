// the `convert` command: batch PNG to WebP conversion,
// either over a directory tree or straight out of a repo zip archive.
package main

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	// decoder registration. `image.Decode` sniffs the real format, so a
	// mislabeled .png with webp contents still decodes.
	_ "golang.org/x/image/webp"
)

// encoder default when the caller doesn't care.
var DEFAULT_QUALITY = 80

// a single unit of conversion work. immutable once built.
type convert_task struct {
	src       string // where the pixels came from, for reporting
	data      []byte // non-nil when the source is an archive entry
	dst       string
	quality   int
	overwrite bool
}

type convert_result struct {
	ok  bool
	msg string
}

// resolves an "auto" worker count (<=0) to the available hardware
// parallelism, clamped to at least 1.
func resolve_workers(workers int) int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// returns every `*.png` file under `root`, recursively.
// order is whatever the directory walk yields.
func find_png_files(root string) ([]string, error) {
	png_list := []string{}
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".png") {
			png_list = append(png_list, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan for PNG files: %w", err)
	}
	return png_list, nil
}

// computes the destination for `src`: its path relative to `root`, extension
// swapped, nested under `<output_root>/<basename of root>/`.
func webp_destination(root string, output_root string, src string) (string, error) {
	rel, err := filepath.Rel(root, src)
	if err != nil {
		return "", fmt.Errorf("failed to relativise %s against %s: %w", src, root, err)
	}
	rel = strings.TrimSuffix(rel, ".png") + ".webp"
	return filepath.Join(output_root, filepath.Base(root), rel), nil
}

func decode_task_image(task convert_task) (image.Image, error) {
	if task.data != nil {
		img, _, err := image.Decode(bytes.NewReader(task.data))
		return img, err
	}
	fh, err := os.Open(task.src)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	return img, err
}

// converts a single image. failures never escape: they come back as a
// `(false, message)` result so one bad file can't sink the batch.
func convert_one(task convert_task) convert_result {
	if !task.overwrite && path_exists(task.dst) {
		return convert_result{ok: true, msg: "Skipping existing: " + task.dst}
	}

	fail := func(err error) convert_result {
		return convert_result{ok: false, msg: fmt.Sprintf("Failed to convert %s: %v", task.src, err)}
	}

	err := os.MkdirAll(filepath.Dir(task.dst), 0755)
	if err != nil {
		return fail(err)
	}

	img, err := decode_task_image(task)
	if err != nil {
		return fail(err)
	}

	quality := task.quality
	if quality < 0 {
		quality = DEFAULT_QUALITY
	}

	fh, err := os.Create(task.dst)
	if err != nil {
		return fail(err)
	}
	err = webp.Encode(fh, img, &webp.Options{Quality: float32(quality)})
	if err != nil {
		fh.Close()
		return fail(err)
	}
	err = fh.Close()
	if err != nil {
		return fail(err)
	}

	return convert_result{ok: true, msg: fmt.Sprintf("Converted: %s -> %s", task.src, task.dst)}
}

// fans `tasks` out over `workers` goroutines, printing results in submission
// order so the `[i/total]` counter stays monotonic. every task runs exactly
// once and all workers are joined before returning.
func run_conversions(tasks []convert_task, workers int) {
	total := len(tasks)
	fmt.Printf("Using %d worker(s)\n", workers)

	slots := make([]chan convert_result, total)
	for i := range slots {
		slots[i] = make(chan convert_result, 1)
	}

	var group errgroup.Group
	group.SetLimit(workers)
	for i := range tasks {
		i := i
		group.Go(func() error {
			slots[i] <- convert_one(tasks[i])
			return nil
		})
	}

	failed := 0
	for i := range slots {
		result := <-slots[i]
		if !result.ok {
			failed += 1
		}
		fmt.Printf("[%d/%d] %s\n", i+1, total, result.msg)
	}
	group.Wait()

	if failed > 0 {
		slog.Warn("some conversions failed", "failed", failed, "total", total)
	}
}

// converts every PNG under `root` into `output_root`.
func convert_tree(root string, output_root string, quality int, overwrite bool, workers int) error {
	png_files, err := find_png_files(root)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d PNG files under %s\n", len(png_files), root)

	if len(png_files) == 0 {
		return nil
	}

	err = os.MkdirAll(output_root, 0755)
	if err != nil {
		return fmt.Errorf("failed to create output root: %w", err)
	}

	task_list := make([]convert_task, 0, len(png_files))
	for _, png_file := range png_files {
		dst, err := webp_destination(root, output_root, png_file)
		if err != nil {
			return err
		}
		task_list = append(task_list, convert_task{
			src:       png_file,
			dst:       dst,
			quality:   quality,
			overwrite: overwrite,
		})
	}

	run_conversions(task_list, workers)
	return nil
}

// github archives nest everything under a single `repo-ref/` directory.
// drop that first path component.
func strip_archive_root(name string) string {
	bits := strings.SplitN(name, "/", 2)
	if len(bits) == 2 {
		return bits[1]
	}
	return name
}

// builds conversion tasks from the `*.png` entries of a zip archive.
// entries whose destination already exists are left unread when
// `overwrite` is false; `convert_one` reports them as skipped.
func archive_tasks(archive string, root_name string, output_root string, quality int, overwrite bool) ([]convert_task, error) {
	zip_rdr, release, err := open_zip_archive(archive)
	if err != nil {
		return nil, err
	}
	defer release()

	task_list := []convert_task{}
	for _, entry := range zip_rdr.File {
		if entry.FileInfo().IsDir() || !strings.HasSuffix(entry.Name, ".png") {
			continue
		}

		rel := strip_archive_root(entry.Name)
		rel = strings.TrimSuffix(filepath.FromSlash(rel), ".png") + ".webp"
		task := convert_task{
			src:       archive + "!" + entry.Name,
			dst:       filepath.Join(output_root, root_name, rel),
			quality:   quality,
			overwrite: overwrite,
		}

		if !overwrite && path_exists(task.dst) {
			task_list = append(task_list, task)
			continue
		}

		fh, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open zipped file entry: %w", err)
		}
		task.data, err = io.ReadAll(fh)
		fh.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read zipped file entry: %w", err)
		}

		task_list = append(task_list, task)
	}
	return task_list, nil
}

// converts every PNG inside a (possibly remote) repo archive,
// without cloning the repo first.
func convert_archive(archive string, root_name string, output_root string, quality int, overwrite bool, workers int) error {
	task_list, err := archive_tasks(archive, root_name, output_root, quality, overwrite)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d PNG files in %s\n", len(task_list), archive)

	if len(task_list) == 0 {
		return nil
	}

	err = os.MkdirAll(output_root, 0755)
	if err != nil {
		return fmt.Errorf("failed to create output root: %w", err)
	}

	run_conversions(task_list, workers)
	return nil
}

func cmd_convert(args []string) {
	flags := pflag.NewFlagSet("convert", pflag.ExitOnError)
	root := flags.String("root", "skins", "folder to scan for PNG files")
	quality := flags.Int("quality", 100, "WEBP quality (0-100)")
	overwrite := flags.Bool("overwrite", false, "overwrite existing .webp files if they already exist")
	output_root := flags.String("output-root", "img", "root folder where converted images will be written")
	workers := flags.Int("workers", 0, "number of parallel workers to use (0 = auto)")
	archive := flags.String("archive", "", "convert PNGs out of a zip archive (path or URL) instead of scanning --root")
	flags.Parse(args)

	output_path := resolve_path(*output_root)

	if *archive != "" {
		archive_path := *archive
		if !strings.HasPrefix(archive_path, "http://") && !strings.HasPrefix(archive_path, "https://") {
			archive_path = resolve_path(archive_path)
			if !path_exists(archive_path) {
				fmt.Printf("Archive does not exist: %s\n", archive_path)
				return
			}
		}
		err := convert_archive(archive_path, filepath.Base(*root), output_path, *quality, *overwrite, resolve_workers(*workers))
		if err != nil {
			slog.Error("archive conversion failed", "archive", archive_path, "error", err)
			os.Exit(1)
		}
		return
	}

	root_path := resolve_path(*root)
	if !path_exists(root_path) {
		fmt.Printf("Root folder does not exist: %s\n", root_path)
		return
	}

	err := convert_tree(root_path, output_path, *quality, *overwrite, resolve_workers(*workers))
	if err != nil {
		slog.Error("conversion failed", "root", root_path, "error", err)
		os.Exit(1)
	}
}
