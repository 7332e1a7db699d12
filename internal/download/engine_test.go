package download_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/pkgforge/soar/internal/download"
)

// rangeServer serves one blob with Range/If-Range semantics.
func rangeServer(t *testing.T, body []byte, etag string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", etag)
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			return
		}
		rng := r.Header.Get("Range")
		if rng != "" && r.Header.Get("If-Range") == etag {
			var from int
			fmt.Sscanf(rng, "bytes=%d-", &from)
			if from < len(body) {
				w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, len(body)-1, len(body)))
				w.WriteHeader(http.StatusPartialContent)
				w.Write(body[from:])
				return
			}
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunSimpleDownload(t *testing.T) {
	body := bytes.Repeat([]byte("soar"), 1024)
	srv := rangeServer(t, body, `"e1"`)
	out := filepath.Join(t.TempDir(), "artifact")

	var kinds []download.ProgressKind
	got, err := download.Run(context.Background(), &download.Request{
		URL:       srv.URL + "/artifact",
		Output:    out,
		Overwrite: download.OverwriteForce,
		OnProgress: func(p download.Progress) {
			kinds = append(kinds, p.Kind)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != out {
		t.Errorf("path = %q, want %q", got, out)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, body) {
		t.Errorf("downloaded %d bytes, want %d", len(b), len(body))
	}
	if kinds[0] != download.ProgressStarting || kinds[len(kinds)-1] != download.ProgressComplete {
		t.Errorf("progress sequence %v lacks Starting...Complete", kinds)
	}
}

func TestRunOverwriteSkip(t *testing.T) {
	srv := rangeServer(t, []byte("fresh"), `"e1"`)
	out := filepath.Join(t.TempDir(), "artifact")
	if err := os.WriteFile(out, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := download.Run(context.Background(), &download.Request{
		URL:       srv.URL + "/artifact",
		Output:    out,
		Overwrite: download.OverwriteSkip,
	}); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(out)
	if string(b) != "stale" {
		t.Errorf("Skip rewrote the file: %q", b)
	}

	if _, err := download.Run(context.Background(), &download.Request{
		URL:       srv.URL + "/artifact",
		Output:    out,
		Overwrite: download.OverwriteForce,
	}); err != nil {
		t.Fatal(err)
	}
	b, _ = os.ReadFile(out)
	if string(b) != "fresh" {
		t.Errorf("Force kept the stale file: %q", b)
	}
}

func TestRunELFMode(t *testing.T) {
	body := append([]byte{0x7f, 'E', 'L', 'F'}, make([]byte, 64)...)
	srv := rangeServer(t, body, `"e1"`)
	out := filepath.Join(t.TempDir(), "tool")
	if _, err := download.Run(context.Background(), &download.Request{
		URL:       srv.URL + "/tool",
		Output:    out,
		Overwrite: download.OverwriteForce,
	}); err != nil {
		t.Fatal(err)
	}
	st, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0755 {
		t.Errorf("mode = %v, want 0755", st.Mode().Perm())
	}
}

func TestRunToStdoutPath(t *testing.T) {
	srv := rangeServer(t, []byte("out"), `"e1"`)
	got, err := download.Run(context.Background(), &download.Request{
		URL:    srv.URL + "/x",
		Output: "-",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "-" {
		t.Errorf("path = %q, want -", got)
	}
}

// A server that refuses the range restarts the download from zero rather
// than appending to a stale prefix.
func TestResumeMismatchedValidatorRestarts(t *testing.T) {
	body := []byte(strings.Repeat("fresh-content!", 100))
	srv := rangeServer(t, body, `"e2"`)
	out := filepath.Join(t.TempDir(), "artifact")
	// A stale 5-byte prefix whose checkpoint carries the old validator
	// "e1": the server answers the mismatched If-Range with the whole body,
	// which must replace the prefix rather than be appended to it. Where
	// the filesystem has no xattr support the checkpoint is absent and the
	// Force policy replaces the file; the result is the same.
	if err := os.WriteFile(out, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	checkpoint := fmt.Sprintf(`{"downloaded":5,"total":%d,"etag":"\"e1\""}`, len(body))
	unix.Setxattr(out, "user.soar.resume", []byte(checkpoint), 0)
	if _, err := download.Run(context.Background(), &download.Request{
		URL:       srv.URL + "/artifact",
		Output:    out,
		Overwrite: download.OverwriteForce,
	}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, body) {
		t.Errorf("content mismatch after restart: got %d bytes, want %d", len(b), len(body))
	}
}
