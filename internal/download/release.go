package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/go-github/v27/github"
	"golang.org/x/oauth2"
	"golang.org/x/xerrors"

	"github.com/pkgforge/soar/internal/httpclient"
)

// Release platforms.
const (
	githubUpstream = "https://api.github.com"
	gitlabUpstream = "https://gitlab.com/api/v4"
	githubMirror   = "https://api.gh.pkgforge.dev"
	gitlabMirror   = "https://api.gl.pkgforge.dev"
)

// Asset is one downloadable release artifact.
type Asset struct {
	Name string
	URL  string
	Size uint64
}

// Release is a normalized GitHub/GitLab release.
type Release struct {
	Tag        string
	Name       string
	Prerelease bool
	Assets     []Asset
}

// ReleaseRequest downloads assets from a project's release matching the
// filter. Tag "" means the latest release.
type ReleaseRequest struct {
	Project    string // owner/repo
	Tag        string
	Filter     AssetFilter
	OutputDir  string
	Overwrite  OverwriteMode
	OnProgress func(Progress)
}

func githubToken() string {
	for _, key := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if tok := os.Getenv(key); tok != "" {
			return tok
		}
	}
	return ""
}

// GithubReleases lists releases for owner/repo, preferring the upstream
// API and falling back to the pkgforge mirror when the upstream rejects or
// throttles the request.
func GithubReleases(ctx context.Context, project string) ([]Release, error) {
	owner, repo, ok := strings.Cut(project, "/")
	if !ok {
		return nil, xerrors.Errorf("invalid project %q: want owner/repo", project)
	}

	hc := httpclient.Client()
	if tok := githubToken(); tok != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok}))
	}
	cl := github.NewClient(hc)
	rels, resp, err := cl.Repositories.ListReleases(ctx, owner, repo, &github.ListOptions{PerPage: 100})
	if err == nil {
		out := make([]Release, 0, len(rels))
		for _, r := range rels {
			out = append(out, fromGithubRelease(r))
		}
		return out, nil
	}
	if resp == nil || !shouldFallback(resp.StatusCode) {
		return nil, err
	}
	return githubMirrorReleases(ctx, project)
}

func fromGithubRelease(r *github.RepositoryRelease) Release {
	rel := Release{
		Tag:        r.GetTagName(),
		Name:       r.GetName(),
		Prerelease: r.GetPrerelease(),
	}
	for _, a := range r.Assets {
		rel.Assets = append(rel.Assets, Asset{
			Name: a.GetName(),
			URL:  a.GetBrowserDownloadURL(),
			Size: uint64(a.GetSize()),
		})
	}
	return rel
}

func shouldFallback(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden ||
		status == http.StatusTooManyRequests || status >= 500
}

type ghJSONAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

type ghJSONRelease struct {
	TagName    string        `json:"tag_name"`
	Name       string        `json:"name"`
	Prerelease bool          `json:"prerelease"`
	Assets     []ghJSONAsset `json:"assets"`
}

func githubMirrorReleases(ctx context.Context, project string) ([]Release, error) {
	var rels []ghJSONRelease
	if err := fetchJSON(ctx, fmt.Sprintf("%s/repos/%s/releases?per_page=100", githubMirror, project), &rels); err != nil {
		return nil, err
	}
	out := make([]Release, 0, len(rels))
	for _, r := range rels {
		rel := Release{Tag: r.TagName, Name: r.Name, Prerelease: r.Prerelease}
		for _, a := range r.Assets {
			rel.Assets = append(rel.Assets, Asset{Name: a.Name, URL: a.BrowserDownloadURL, Size: uint64(a.Size)})
		}
		out = append(out, rel)
	}
	return out, nil
}

type glJSONLink struct {
	Name      string `json:"name"`
	DirectURL string `json:"direct_asset_url"`
}

type glJSONRelease struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Assets  struct {
		Links []glJSONLink `json:"links"`
	} `json:"assets"`
}

// GitlabReleases lists releases for a GitLab project, with the same mirror
// fallback policy as GithubReleases.
func GitlabReleases(ctx context.Context, project string) ([]Release, error) {
	fetch := func(base string) ([]Release, error) {
		var rels []glJSONRelease
		u := fmt.Sprintf("%s/projects/%s/releases", base, url.PathEscape(project))
		if err := fetchJSON(ctx, u, &rels); err != nil {
			return nil, err
		}
		out := make([]Release, 0, len(rels))
		for _, r := range rels {
			rel := Release{Tag: r.TagName, Name: r.Name}
			for _, l := range r.Assets.Links {
				rel.Assets = append(rel.Assets, Asset{Name: l.Name, URL: l.DirectURL})
			}
			out = append(out, rel)
		}
		return out, nil
	}
	rels, err := fetch(gitlabUpstream)
	if err != nil {
		var herr *httpStatusError
		if xerrors.As(err, &herr) && shouldFallback(herr.status) {
			return fetch(gitlabMirror)
		}
		return nil, err
	}
	return rels, nil
}

type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s: HTTP status %d", e.url, e.status)
}

func fetchJSON(ctx context.Context, rawURL string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	if tok := os.Getenv("GITLAB_TOKEN"); tok != "" && strings.Contains(rawURL, "gitlab") {
		req.Header.Set("PRIVATE-TOKEN", tok)
	}
	resp, err := httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{url: rawURL, status: resp.StatusCode}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// RunRelease resolves the requested release, filters its assets and
// downloads each match into OutputDir. It returns the downloaded paths.
func RunRelease(ctx context.Context, platform string, req *ReleaseRequest) ([]string, error) {
	var (
		rels []Release
		err  error
	)
	switch platform {
	case "gitlab":
		rels, err = GitlabReleases(ctx, req.Project)
	default:
		rels, err = GithubReleases(ctx, req.Project)
	}
	if err != nil {
		return nil, err
	}
	var rel *Release
	for i := range rels {
		if req.Tag == "" || rels[i].Tag == req.Tag {
			rel = &rels[i]
			break
		}
	}
	if rel == nil {
		return nil, xerrors.Errorf("%s: no release matching tag %q", req.Project, req.Tag)
	}

	var paths []string
	for _, asset := range rel.Assets {
		ok, err := req.Filter.Matches(asset.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out := req.OutputDir
		if out != "" && !strings.HasSuffix(out, "/") {
			out += "/"
		}
		p, err := Run(ctx, &Request{
			URL:        asset.URL,
			Output:     out,
			Overwrite:  req.Overwrite,
			OnProgress: req.OnProgress,
		})
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		return nil, xerrors.Errorf("%s@%s: no assets match the filter", req.Project, rel.Tag)
	}
	return paths, nil
}
