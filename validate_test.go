package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func probe_server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, USER_AGENT, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/moved":
			http.Redirect(w, r, "/ok", http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func Test_check_url(t *testing.T) {
	srv := probe_server(t)
	client := srv.Client()

	result := check_url(client, srv.URL+"/ok")
	assert.True(t, result.ok)
	assert.Equal(t, 200, result.status)
	assert.Equal(t, "", result.err)

	// redirects are followed and land on the healthy target
	result = check_url(client, srv.URL+"/moved")
	assert.True(t, result.ok)
	assert.Equal(t, 200, result.status)

	result = check_url(client, srv.URL+"/gone.png")
	assert.False(t, result.ok)
	assert.Equal(t, 404, result.status)
	assert.NotEmpty(t, result.err)

	// transport-level failure: no status code, a human-readable error
	result = check_url(client, "http://127.0.0.1:1/unreachable.png")
	assert.False(t, result.ok)
	assert.Equal(t, 0, result.status)
	assert.NotEmpty(t, result.err)
}

func Test_validate_urls(t *testing.T) {
	srv := probe_server(t)

	url_index := map[string]map[string]bool{
		srv.URL + "/ok":       {"a.json": true},
		srv.URL + "/gone.png": {"b.json": true, "a.json": true},
	}

	broken := validate_urls(url_index, 4)
	assert.Len(t, broken, 1)
	assert.Equal(t, srv.URL+"/gone.png", broken[0].URL)
	assert.Equal(t, 404, broken[0].Status)
	assert.Equal(t, []string{"a.json", "b.json"}, broken[0].Files)
}

func Test_validate_urls_all_healthy(t *testing.T) {
	srv := probe_server(t)
	url_index := map[string]map[string]bool{
		srv.URL + "/ok": {"a.json": true},
	}
	assert.Empty(t, validate_urls(url_index, 2))
}

func Test_write_report(t *testing.T) {
	report := link_report{
		TotalURLs:   3,
		BrokenCount: 1,
		Broken: []broken_link{
			{URL: "https://cdn.example/gone.webp", Status: 404, Error: "404 Not Found", Files: []string{"a.json", "b.json"}},
		},
	}

	path := filepath.Join(t.TempDir(), "broken_image_links.json")
	assert.NoError(t, write_report(path, report))

	blob, err := os.ReadFile(path)
	assert.NoError(t, err)

	assert.Equal(t, int64(3), gjson.GetBytes(blob, "total_urls").Int())
	assert.Equal(t, int64(1), gjson.GetBytes(blob, "broken_count").Int())
	assert.Equal(t, int64(1), int64(len(gjson.GetBytes(blob, "broken").Array())))
	assert.Equal(t, "https://cdn.example/gone.webp", gjson.GetBytes(blob, "broken.0.url").String())
	assert.Equal(t, int64(404), gjson.GetBytes(blob, "broken.0.status").Int())
}

func Test_report_schema(t *testing.T) {
	// an empty run still produces a valid report
	ok_blob := []byte(`{"total_urls": 0, "broken_count": 0, "broken": []}`)
	assert.NoError(t, validate_report(ok_blob))

	cases := map[string]string{
		"missing broken list": `{"total_urls": 1, "broken_count": 0}`,
		"files must be non-empty": `{"total_urls": 1, "broken_count": 1,
			"broken": [{"url": "u", "status": 0, "error": "e", "files": []}]}`,
		"status must be an integer": `{"total_urls": 1, "broken_count": 1,
			"broken": [{"url": "u", "status": "500", "error": "e", "files": ["a.json"]}]}`,
	}
	for name, blob := range cases {
		assert.Error(t, validate_report([]byte(blob)), name)
	}
}
