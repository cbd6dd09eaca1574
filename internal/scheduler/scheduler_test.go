package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuanxie/sed-dl/internal/auth"
	"github.com/yuanxie/sed-dl/internal/config"
	"github.com/yuanxie/sed-dl/internal/utils"
)

const testUUID = "5e7cf412-8b61-4b48-9a43-0d3f7be9b0a1"
const badUUID = "11111111-2222-3333-4444-555555555555"

func items(paths ...string) []utils.DownloadItem {
	out := make([]utils.DownloadItem, 0, len(paths))
	for _, p := range paths {
		out = append(out, utils.DownloadItem{RelPath: p})
	}
	return out
}

func relPaths(items []utils.DownloadItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.RelPath)
	}
	return out
}

func TestApplyExtensionFilter(t *testing.T) {
	in := items("a.pdf", "b.ts", "c.mp3", "d.PDF")
	got := applyExtensionFilter(in, []string{"pdf", ".mp3"})
	assert.Equal(t, []string{"a.pdf", "c.mp3", "d.PDF"}, relPaths(got))

	// empty filter passes everything
	assert.Len(t, applyExtensionFilter(in, nil), 4)
}

func TestOrderItemsKindThenEmissionOrder(t *testing.T) {
	in := []utils.DownloadItem{
		{Kind: utils.KindTextbook, RelPath: "数学课本.pdf"},
		{Kind: utils.KindTextbook, RelPath: "数学课本 - [audio]/[1] 第一单元.mp3"},
		{Kind: utils.KindCourse, RelPath: "z-课堂实录.ts"},
	}
	orderItems(in)
	// kinds group together; inside a kind the emission order survives even
	// when it disagrees with path order (the audio dir sorts before the pdf)
	assert.Equal(t, []string{
		"z-课堂实录.ts",
		"数学课本.pdf",
		"数学课本 - [audio]/[1] 第一单元.mp3",
	}, relPaths(in))
}

func TestApplySelection(t *testing.T) {
	in := items("a.pdf", "b.pdf", "c.pdf")
	got, err := applySelection(in, "1,3")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, relPaths(got))

	got, err = applySelection(in, "")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = applySelection(in, "x")
	assert.Error(t, err)
}

// testServer serves a textbook details document plus the PDF payload it
// points at. The bad resource ID always 404s.
func testServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	payload := "pdf-bytes"
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/details/"+testUUID+".json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
  "id": %q,
  "global_title": {"zh-CN": "数学课本"},
  "ti_items": [
    {"ti_format": "pdf", "ti_storages": [%q], "ti_size": %d}
  ]
}`, testUUID, srv.URL+"/files/book.pdf", len(payload))
	})
	mux.HandleFunc("/details/"+badUUID+".json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/audio/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})
	mux.HandleFunc("/files/book.pdf", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	})
	return srv, payload
}

func testOptions(t *testing.T, srv *httptest.Server, root string) Options {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ACCESS_TOKEN", "")
	cfg := config.Default()
	cfg.Network.ServerPrefixes = []string{"test"}
	cfg.URLTemplates["TEXTBOOK_DETAILS"] = srv.URL + "/details/{resource_id}.json"
	cfg.URLTemplates["TEXTBOOK_AUDIO"] = srv.URL + "/audio/{resource_id}.json"
	return Options{
		Config:     cfg,
		Client:     utils.NewHTTPClient(utils.HTTPClientConfig{}),
		Auth:       auth.NewResolver("tok", nil),
		OutputRoot: root,
		Workers:    2,
		Retries:    1,
		Quality:    "best",
		Flat:       true,
	}
}

func TestRunEndToEnd(t *testing.T) {
	srv, payload := testServer(t)
	root := t.TempDir()

	summary, err := Run(context.Background(), []utils.Task{
		{Input: testUUID, Kind: utils.KindTextbook, ID: testUUID},
	}, testOptions(t, srv, root))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Zero(t, summary.Failed)
	assert.False(t, summary.Failures())

	data, err := os.ReadFile(filepath.Join(root, "book.pdf"))
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestRunIsolatesFailedTasks(t *testing.T) {
	srv, _ := testServer(t)
	root := t.TempDir()

	summary, err := Run(context.Background(), []utils.Task{
		{Input: badUUID, Kind: utils.KindTextbook, ID: badUUID},
		{Input: testUUID, Kind: utils.KindTextbook, ID: testUUID},
	}, testOptions(t, srv, root))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	_, statErr := os.Stat(filepath.Join(root, "book.pdf"))
	assert.NoError(t, statErr)
}

func TestRunAllTasksFailing(t *testing.T) {
	srv, _ := testServer(t)
	root := t.TempDir()

	_, err := Run(context.Background(), []utils.Task{
		{Input: badUUID, Kind: utils.KindTextbook, ID: badUUID},
	}, testOptions(t, srv, root))
	assert.Error(t, err)
}

func TestRunExtensionFilterRemovesEverything(t *testing.T) {
	srv, _ := testServer(t)
	root := t.TempDir()

	opts := testOptions(t, srv, root)
	opts.FilterExts = []string{"mp3"}

	var summary *Summary
	var err error
	out := captureStdout(t, func() {
		summary, err = Run(context.Background(), []utils.Task{
			{Input: testUUID, Kind: utils.KindTextbook, ID: testUUID},
		}, opts)
	})
	require.NoError(t, err)
	assert.Zero(t, summary.Completed)
	assert.Zero(t, summary.Failed)

	// an empty result is informational, not a warning
	assert.Contains(t, out, "nothing to download")
	assert.NotContains(t, out, "! nothing to download")
	assert.Contains(t, out, "ℹ")
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()
	fn()
	require.NoError(t, w.Close())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}
