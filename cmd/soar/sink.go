package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkgforge/soar/internal/events"
	"github.com/pkgforge/soar/internal/fsutil"
)

// cliSink renders events as log lines (or JSON under --json). Terminal
// rendering with progress bars lives in the external frontend; this sink
// is the plain fallback.
type cliSink struct {
	json  bool
	quiet bool
}

func newSink() events.Sink {
	return &cliSink{json: *jsonOut, quiet: *quiet}
}

func (s *cliSink) Emit(ev events.Event) {
	if s.json {
		b, err := json.Marshal(map[string]interface{}{
			"kind":    int(ev.Kind),
			"op_id":   uint64(ev.OpID),
			"pkg":     ev.PkgName,
			"pkg_id":  ev.PkgID,
			"repo":    ev.Repo,
			"stage":   ev.Stage,
			"current": ev.Current,
			"total":   ev.Total,
			"count":   ev.Count,
			"message": ev.Message,
		})
		if err == nil {
			fmt.Fprintln(os.Stdout, string(b))
		}
		return
	}
	if s.quiet {
		return
	}
	switch ev.Kind {
	case events.DownloadProgress:
		// Chunk events are too chatty for plain output.
	case events.DownloadStarting:
		fmt.Printf("%s: downloading (%s)\n", ev.PkgName, fsutil.FormatBytes(ev.Total, 2))
	case events.DownloadResuming:
		fmt.Printf("%s: resuming at %s of %s\n", ev.PkgName, fsutil.FormatBytes(ev.Current, 2), fsutil.FormatBytes(ev.Total, 2))
	case events.DownloadComplete:
		fmt.Printf("%s: downloaded\n", ev.PkgName)
	case events.Syncing:
		fmt.Printf("repo %s: %s\n", ev.Repo, ev.Stage)
	case events.OperationFailed:
		fmt.Fprintf(os.Stderr, "%s: failed: %v\n", ev.PkgName, ev.Err)
	case events.Log:
		fmt.Println(ev.Message)
	default:
		if ev.Stage != "" {
			fmt.Printf("%s: %s\n", ev.PkgName, ev.Stage)
		}
	}
}
