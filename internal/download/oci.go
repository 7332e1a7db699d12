package download

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"golang.org/x/xerrors"

	"github.com/pkgforge/soar/internal/httpclient"
)

// OCIRequest downloads a single registry blob (a ghcr-hosted artifact) to
// Output with the same progress contract as the plain downloader.
type OCIRequest struct {
	// Reference is either a blob digest reference
	// (`ghcr.io/org/pkg@sha256:...`) or a tagged manifest reference whose
	// largest layer is taken.
	Reference  string
	Output     string
	Size       uint64 // expected size from metadata, 0 if unknown
	OnProgress func(Progress)
}

func (r *OCIRequest) progress(p Progress) {
	if r.OnProgress != nil {
		r.OnProgress(p)
	}
}

// RunOCI streams the referenced blob to disk.
func RunOCI(ctx context.Context, req *OCIRequest) (string, error) {
	opts := []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
		remote.WithTransport(httpclient.Client().Transport),
	}

	var layer v1.Layer
	if dig, err := name.NewDigest(req.Reference); err == nil {
		layer, err = remote.Layer(dig, opts...)
		if err != nil {
			return "", wrapTransport(err)
		}
	} else {
		ref, err := name.ParseReference(req.Reference)
		if err != nil {
			return "", xerrors.Errorf("parsing OCI reference %q: %w", req.Reference, err)
		}
		img, err := remote.Image(ref, opts...)
		if err != nil {
			return "", wrapTransport(err)
		}
		layers, err := img.Layers()
		if err != nil {
			return "", err
		}
		if len(layers) == 0 {
			return "", xerrors.Errorf("%s: manifest has no layers", req.Reference)
		}
		layer = layers[0]
		var best int64
		for _, l := range layers {
			if sz, err := l.Size(); err == nil && sz > best {
				best, layer = sz, l
			}
		}
	}

	total := req.Size
	if total == 0 {
		if sz, err := layer.Size(); err == nil && sz > 0 {
			total = uint64(sz)
		}
	}

	rc, err := layer.Compressed()
	if err != nil {
		return "", wrapTransport(err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(req.Output), 0755); err != nil {
		return "", err
	}
	f, err := os.Create(req.Output)
	if err != nil {
		return "", err
	}
	defer f.Close()

	req.progress(Progress{Kind: ProgressStarting, Total: total})
	buf := make([]byte, 64*1024)
	var downloaded uint64
	for {
		if err := ctx.Err(); err != nil {
			req.progress(Progress{Kind: ProgressAborted, Current: downloaded, Total: total})
			return "", err
		}
		n, rerr := rc.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return "", werr
			}
			downloaded += uint64(n)
			req.progress(Progress{Kind: ProgressChunk, Current: downloaded, Total: total})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			req.progress(Progress{Kind: ProgressError, Err: rerr})
			return "", rerr
		}
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if isELF(req.Output) {
		if err := os.Chmod(req.Output, 0755); err != nil {
			return "", err
		}
	}
	req.progress(Progress{Kind: ProgressComplete, Total: total})
	return req.Output, nil
}

func wrapTransport(err error) error {
	if terr, ok := err.(*transport.Error); ok {
		return xerrors.Errorf("registry: HTTP status %d: %w", terr.StatusCode, err)
	}
	return err
}
