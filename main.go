package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
)

type State struct {
	CWD    string
	Client *http.Client
}

func NewState() *State {
	return &State{}
}

// -- globals

var STATE *State

// --- bootstrap

func init_state() *State {
	state := NewState()

	cwd, err := os.Getwd()
	if err != nil {
		fatal("failed to find the current working directory", err)
	}
	state.CWD = cwd

	state.Client = &http.Client{}

	return state
}

func init() {
	STATE = init_state()
	if is_testing() {
		return
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelDebug})))
}

// resolves `path` against the project root (the current working directory),
// leaving absolute paths untouched.
func resolve_path(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(STATE.CWD, path)
}

func usage() {
	fmt.Fprintln(os.Stderr, title_case("weaponpaints asset tools"))
	fmt.Fprintln(os.Stderr, "usage: weaponpaints-tools <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  convert    convert PNG skin images to WebP")
	fmt.Fprintln(os.Stderr, "  links      rewrite image URLs in JSON data files")
	fmt.Fprintln(os.Stderr, "  validate   probe image URLs and report broken links")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "convert":
		cmd_convert(args)
	case "links":
		cmd_links(args)
	case "validate":
		cmd_validate(args)
	default:
		slog.Error("unknown command", "command", command)
		usage()
		os.Exit(1)
	}
}
