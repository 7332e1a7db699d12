// Package sync materializes remote repository catalogs as local SQLite
// databases: conditional fetch, optional zstd decompression, optional
// minisign verification, atomic replacement.
package sync

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/jedisct1/go-minisign"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/pkgforge/soar/internal/config"
	"github.com/pkgforge/soar/internal/db"
	"github.com/pkgforge/soar/internal/events"
	"github.com/pkgforge/soar/internal/httpclient"
)

var (
	sqliteMagic = []byte("SQLite format 3\x00")
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// SignatureError is a failed minisign verification.
type SignatureError struct {
	Repo string
	Err  error
}

func (e *SignatureError) Error() string {
	return "repository " + e.Repo + ": signature verification failed: " + e.Err.Error()
}
func (e *SignatureError) Unwrap() error { return e.Err }

// Syncer drives catalog synchronization for a profile.
type Syncer struct {
	Paths config.Paths
	Bus   *events.Bus

	// commitMu serializes catalog replacement; fetches run concurrently.
	commitMu sync.Mutex
}

// All syncs every enabled repository in repos, fetching concurrently and
// committing serially; disabled ones are skipped. The first error is
// returned after all repos finish.
func (s *Syncer) All(ctx context.Context, repos []config.Repository, force bool) error {
	var eg errgroup.Group
	for i := range repos {
		repo := repos[i]
		if !repo.IsEnabled() {
			continue
		}
		eg.Go(func() error {
			if err := s.One(ctx, &repo, force); err != nil {
				return xerrors.Errorf("syncing %s: %w", repo.Name, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// One syncs a single repository. Without force, a repo inside its sync
// interval or whose remote answers 304 is left untouched.
func (s *Syncer) One(ctx context.Context, repo *config.Repository, force bool) error {
	dbPath := s.Paths.RepoDB(repo.Name)

	if !force {
		interval, err := repo.SyncIntervalMillis()
		if err != nil {
			return err
		}
		if interval == config.SyncNever {
			if _, err := os.Stat(dbPath); err == nil {
				return nil
			}
			// Never synced yet; fetch once regardless.
		} else if interval != config.SyncAlways {
			if st, err := os.Stat(dbPath); err == nil {
				age := timeSinceMillis(st.ModTime())
				if age < interval {
					return nil
				}
			}
		}
	}

	var etag string
	if md, err := db.OpenMetadata(repo.Name, dbPath); err == nil {
		etag, _ = md.ETag()
		md.Close()
	}

	s.Bus.Emit(events.Event{Kind: events.Syncing, Repo: repo.Name, Stage: events.StageFetching})

	req, err := http.NewRequestWithContext(ctx, "GET", repo.URL, nil)
	if err != nil {
		return err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		s.Bus.Emit(events.Event{Kind: events.Syncing, Repo: repo.Name, Stage: events.StageUpToDate})
		touch(dbPath)
		return nil
	case resp.StatusCode != http.StatusOK:
		return xerrors.Errorf("%s: HTTP status %v", repo.URL, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	newETag := resp.Header.Get("ETag")

	if repo.VerifySignature() {
		s.Bus.Emit(events.Event{Kind: events.Syncing, Repo: repo.Name, Stage: events.StageValidating})
		if err := s.verify(ctx, repo, raw); err != nil {
			return err
		}
	}

	payload := raw
	if bytes.HasPrefix(raw, zstdMagic) {
		s.Bus.Emit(events.Event{Kind: events.Syncing, Repo: repo.Name, Stage: events.StageDecompressing})
		zr, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		payload, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return err
		}
	}
	if !bytes.HasPrefix(payload, sqliteMagic) {
		return xerrors.Errorf("%s: catalog is neither SQLite nor zstd-compressed SQLite", repo.URL)
	}

	s.Bus.Emit(events.Event{Kind: events.Syncing, Repo: repo.Name, Stage: events.StageWritingDatabase})
	count, err := s.commit(repo.Name, dbPath, payload, newETag)
	if err != nil {
		return err
	}
	s.Bus.Emit(events.Event{Kind: events.Syncing, Repo: repo.Name, Stage: events.StageComplete, Count: count})
	return nil
}

// commit materializes the catalog on a side path, opens it to run the
// JSONB migration and record the etag, then renames over the old catalog.
func (s *Syncer) commit(repoName, dbPath string, payload []byte, etag string) (int, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return 0, err
	}
	tmp := dbPath + ".sync"
	if err := os.WriteFile(tmp, payload, 0644); err != nil {
		return 0, err
	}
	md, err := db.OpenMetadata(repoName, tmp)
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	count, err := md.PackageCount()
	if err == nil {
		err = md.SetETag(etag)
	}
	if cerr := md.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	// Drop stale WAL sidecars from the previous catalog before the swap.
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
	if err := os.Rename(tmp, dbPath); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return count, nil
}

// verify downloads the detached .minisig and the repository public key,
// then checks the signature over the raw catalog bytes.
func (s *Syncer) verify(ctx context.Context, repo *config.Repository, raw []byte) error {
	if repo.PubKey == "" {
		return &SignatureError{Repo: repo.Name, Err: xerrors.New("signature verification enabled without a public key")}
	}
	keyBytes, err := fetch(ctx, repo.PubKey)
	if err != nil {
		return err
	}
	sigBytes, err := fetch(ctx, repo.URL+".minisig")
	if err != nil {
		return err
	}
	key, err := minisign.NewPublicKey(publicKeyLine(keyBytes))
	if err != nil {
		return &SignatureError{Repo: repo.Name, Err: err}
	}
	sig, err := minisign.DecodeSignature(string(sigBytes))
	if err != nil {
		return &SignatureError{Repo: repo.Name, Err: err}
	}
	ok, err := key.Verify(raw, sig)
	if err != nil || !ok {
		if err == nil {
			err = xerrors.New("signature mismatch")
		}
		return &SignatureError{Repo: repo.Name, Err: err}
	}
	return nil
}

// publicKeyLine extracts the base64 key from a minisign.pub file, which
// may carry an untrusted-comment header line.
func publicKeyLine(keyBytes []byte) string {
	var last string
	for _, line := range bytes.Split(keyBytes, []byte("\n")) {
		l := string(bytes.TrimSpace(line))
		if l == "" || bytes.HasPrefix(bytes.TrimSpace(line), []byte("untrusted comment:")) {
			continue
		}
		last = l
	}
	return last
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpclient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("%s: HTTP status %v", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func touch(path string) {
	if err := os.Chtimes(path, timeNow(), timeNow()); err != nil && !os.IsNotExist(err) {
		log.Printf("touch %s: %v", path, err)
	}
}
