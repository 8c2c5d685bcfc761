// HTTP plumbing: the liveness probe used by `validate` and the
// remote/local zip access used by `convert --archive`.
package main

import (
	"archive/zip"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/snabb/httpreaderat"

	bufra "github.com/avvmoto/buf-readerat"
)

var USER_AGENT = "Optimised-WeaponPaints/validator"

// a single URL check: one attempt, no retries.
var CHECK_TIMEOUT = 5 * time.Second

type url_status struct {
	url    string
	ok     bool
	status int
	err    string
}

// probes `url` with a HEAD request.
// `ok` is true iff a response arrived with a status code in [200,400).
// transport failures (DNS, refused connections, timeouts) yield status 0 and
// the error text; error responses yield the real status code.
func check_url(client *http.Client, url string) url_status {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return url_status{url: url, ok: false, status: 0, err: err.Error()}
	}
	req.Header.Set("User-Agent", USER_AGENT)

	resp, err := client.Do(req)
	if err != nil {
		return url_status{url: url, ok: false, status: 0, err: err.Error()}
	}
	resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 400
	err_msg := ""
	if !ok {
		err_msg = resp.Status // "404 Not Found"
	}
	return url_status{url: url, ok: ok, status: resp.StatusCode, err: err_msg}
}

// returns a zip reader over `archive`, which is either a local file path or a
// http(s) URL. URL archives are not downloaded whole:
//
// a 'readerat' is an implementation of the built-in Go interface `io.ReaderAt`,
// that provides a means to jump around within the bytes of a remote file using
// HTTP Range requests. a 'buffered readerat' remembers the bytes already read,
// reducing the number of future range requests.
//
// the returned func releases whatever is backing the reader.
func open_zip_archive(archive string) (*zip.Reader, func(), error) {
	if strings.HasPrefix(archive, "http://") || strings.HasPrefix(archive, "https://") {
		req, err := http.NewRequest(http.MethodGet, archive, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", USER_AGENT)

		slog.Debug("opening remote archive", "url", archive)
		http_readerat, err := httpreaderat.New(STATE.Client, req, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create a HTTPReaderAt: %w", err)
		}

		buffer_size := 1024 * 1024 // 1MiB
		buffered_http_readerat := bufra.NewBufReaderAt(http_readerat, buffer_size)
		zip_rdr, err := zip.NewReader(buffered_http_readerat, http_readerat.Size())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create a zip reader: %w", err)
		}
		return zip_rdr, func() {}, nil
	}

	fh, err := os.Open(archive)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	zip_rdr, err := zip.NewReader(fh, info.Size())
	if err != nil {
		fh.Close()
		return nil, nil, fmt.Errorf("failed to create a zip reader: %w", err)
	}
	return zip_rdr, func() { fh.Close() }, nil
}
