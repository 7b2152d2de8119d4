package catalog

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"soundserver/internal/naming"
	"soundserver/internal/search"
)

// Service is what the HTTP surface talks to.
type Service struct {
	catalog *Catalog
	store   *DirStore
	fetcher Fetcher
}

func NewService(catalog *Catalog, store *DirStore, fetcher Fetcher) *Service {
	return &Service{catalog: catalog, store: store, fetcher: fetcher}
}

// List returns every sound, rebuilding the catalog first if it is stale.
func (s *Service) List(ctx context.Context, baseURL string) ([]File, error) {
	if err := s.catalog.RefreshIfStale(ctx); err != nil {
		return nil, err
	}
	return s.catalog.Snapshot(baseURL)
}

// Search returns the sounds among the top limit fuzzy matches for query, best first.
func (s *Service) Search(ctx context.Context, baseURL, query string, limit int) ([]File, error) {
	if err := s.catalog.RefreshIfStale(ctx); err != nil {
		return nil, err
	}
	log.Info("Searching for similar matches", "limit", limit, "query", query)
	matches := search.Rank(query, s.catalog.Names(), limit)
	log.Debug("Found matches", "matches", matches)

	files := make([]File, 0, len(matches))
	for _, m := range matches {
		e, err := s.catalog.Resolve(m.Name)
		if err != nil {
			// rebuilt underneath us
			continue
		}
		f, err := s.catalog.file(baseURL, e)
		if err != nil {
			return nil, err
		}
		f.Score = m.Score
		files = append(files, f)
	}
	return files, nil
}

// Lucky returns the fetch path of the single best match for query.
func (s *Service) Lucky(ctx context.Context, query string) (string, error) {
	if err := s.catalog.RefreshIfStale(ctx); err != nil {
		return "", err
	}
	m, ok := search.Best(query, s.catalog.Names())
	if !ok {
		return "", fmt.Errorf("%w: nothing matches %q", ErrNotFound, query)
	}
	log.Info("Redirecting client to file", "name", m.Name, "score", m.Score)
	return s.catalog.FetchPath(m.Name), nil
}

// Open resolves fullName to a file on disk, downloading it first if the
// catalog only knows it as a remote sound.
func (s *Service) Open(ctx context.Context, fullName string) (string, error) {
	e, err := s.catalog.Resolve(fullName)
	if err != nil {
		return "", err
	}
	if e.Origin == OriginRemote {
		if e, err = s.catalog.Materialize(ctx, e); err != nil {
			return "", err
		}
	}
	log.Info("Serving local file", "name", fullName)
	return s.catalog.LocalPath(e)
}

// Upload stores r under a sanitized form of filename.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	name := UploadFilename(filename)
	if _, err := naming.CheckExtension(name); err != nil {
		return "", err
	}
	n, err := s.store.Save(name, r)
	if err != nil {
		return "", err
	}
	log.Info("Stored upload", "file", name, "size", humanize.Bytes(uint64(n)))
	s.catalog.Invalidate()
	return name, nil
}

// AddFromURL downloads rawURL into the store as name plus the url's extension.
func (s *Service) AddFromURL(ctx context.Context, rawURL, name string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a valid url: %v", naming.ErrInvalidInput, rawURL, err)
	}
	ext, err := naming.CheckExtension(u.Path)
	if err != nil {
		return "", err
	}
	filename := name + ext
	dest, err := s.store.Path(filename)
	if err != nil {
		return "", err
	}
	if err := s.fetcher.Fetch(ctx, rawURL, dest); err != nil {
		return "", err
	}
	s.catalog.Invalidate()
	return filename, nil
}

// UploadFilename reduces a client supplied filename to a safe base name:
// no directories, only [A-Za-z0-9-_~.], no leading or trailing dots and dashes.
func UploadFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	safe := strings.Trim(naming.MakeURLSafe(base), ".-")
	if len(safe) > 255 {
		safe = safe[len(safe)-255:]
	}
	return safe
}
