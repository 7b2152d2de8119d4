package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"soundserver/internal/naming"
)

// Catalog is the in-memory index merging the local store with third-party
// manifests. Builds replace the whole snapshot and are serialized; readers only
// ever see a complete snapshot.
type Catalog struct {
	store       *DirStore
	manifestDir string
	fetcher     Fetcher
	clock       clock.Clock
	interval    time.Duration
	prefix      string

	buildMu sync.Mutex

	mu      sync.RWMutex
	entries []Entry
	known   map[string]int
	builtAt time.Time
	dirty   bool

	inflight singleflight.Group
}

func New(store *DirStore, fetcher Fetcher, clk clock.Clock, cfg Config) *Catalog {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	prefix := strings.TrimSuffix(cfg.RoutePrefix, "/")
	if prefix == "" {
		prefix = DefaultRoutePrefix
	}
	return &Catalog{
		store:       store,
		manifestDir: cfg.ManifestDir,
		fetcher:     fetcher,
		clock:       clk,
		interval:    interval,
		prefix:      prefix,
		known:       map[string]int{},
	}
}

// Build re-reads the store and the manifests and publishes the result.
// On error the previous snapshot is kept.
func (c *Catalog) Build(ctx context.Context) error {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	return c.build(ctx)
}

func (c *Catalog) build(ctx context.Context) error {
	// invalidations arriving from here on must survive this build
	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()

	entries, known, err := c.collect(ctx)
	if err != nil {
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
		log.Error("Failed to build catalog", "err", err)
		return err
	}

	now := c.clock.Now()
	c.mu.Lock()
	c.entries = entries
	c.known = known
	c.builtAt = now
	c.mu.Unlock()

	log.Debug("Successfully built catalog", "sounds", len(entries), "at", now.UTC().Format(time.RFC3339))
	return nil
}

func (c *Catalog) collect(ctx context.Context) ([]Entry, map[string]int, error) {
	var entries []Entry
	known := map[string]int{}
	seenShort := map[string]bool{}
	add := func(e Entry) bool {
		if _, ok := known[e.FullName]; ok {
			return false
		}
		// a remote record never shadows any entry with the same short name
		if e.Origin == OriginRemote && seenShort[e.ShortName] {
			return false
		}
		known[e.FullName] = len(entries)
		seenShort[e.ShortName] = true
		entries = append(entries, e)
		return true
	}

	files, err := c.store.List()
	if err != nil {
		return nil, nil, &BuildError{Op: "list store", Path: c.store.Dir(), Err: err}
	}
	for _, filename := range files {
		short, full, err := naming.MakeSoundName(filename, filename)
		if err != nil || !usableName(short, full) {
			log.Warn("Skipping local file with unusable name", "file", filename)
			continue
		}
		if !add(Entry{ShortName: short, FullName: full, Origin: OriginLocal, Filename: filename}) {
			log.Debug("Local file collides with another local file, not adding to catalog", "file", filename, "name", full)
			continue
		}
		log.Debug("Adding local file to catalog", "name", short)
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, &BuildError{Op: "build", Path: c.store.Dir(), Err: err}
	}

	records, err := LoadManifests(c.manifestDir)
	if err != nil {
		return nil, nil, err
	}
	for _, rec := range records {
		if rec.URL == "" {
			log.Warn("Skipping manifest record without url", "name", rec.Name)
			continue
		}
		short, full, err := naming.MakeSoundName(rec.URL, rec.Name)
		if err != nil || !usableName(short, full) {
			log.Warn("Skipping manifest record with unusable name", "name", rec.Name, "url", rec.URL, "err", err)
			continue
		}
		if !add(Entry{ShortName: short, FullName: full, Origin: OriginRemote, RemoteURL: rec.URL}) {
			log.Debug("File already exists in catalog, not adding", "name", full)
		}
	}

	log.Debug("Added sounds to catalog", "count", len(entries))
	return entries, known, nil
}

// usableName rejects names that would be hidden or empty once stored on disk.
func usableName(short, full string) bool {
	return short != "" && !strings.HasPrefix(full, ".")
}

// IsStale reports whether a built catalog is at least interval old at now.
func (c *Catalog) IsStale(now time.Time, interval time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.builtAt.IsZero() && now.Sub(c.builtAt) >= interval
}

// NeedsRefresh is true when the refresh interval elapsed or the catalog was invalidated.
func (c *Catalog) NeedsRefresh() bool {
	c.mu.RLock()
	dirty := c.dirty
	c.mu.RUnlock()
	return dirty || c.IsStale(c.clock.Now(), c.interval)
}

// RefreshIfStale rebuilds the catalog if it needs a refresh. Concurrent callers
// that arrive while a rebuild runs reuse its result.
func (c *Catalog) RefreshIfStale(ctx context.Context) error {
	if !c.NeedsRefresh() {
		return nil
	}
	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	if !c.NeedsRefresh() {
		return nil
	}
	log.Debug("Catalog is stale, rebuilding")
	return c.build(ctx)
}

// Invalidate forces a rebuild on the next refresh.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

func (c *Catalog) BuiltAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.builtAt
}

func (c *Catalog) Resolve(fullName string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.known[fullName]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, fullName)
	}
	return c.entries[i], nil
}

// Entries returns a copy of the current snapshot in catalog order.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Names returns the full names of the current snapshot in catalog order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.FullName
	}
	return out
}

// Materialize makes a remote entry local: the file is downloaded into the store,
// the catalog is rebuilt and the promoted entry returned. Local entries are
// returned as is. Concurrent calls for the same name share one download.
func (c *Catalog) Materialize(ctx context.Context, e Entry) (Entry, error) {
	if e.Origin == OriginLocal {
		return e, nil
	}

	// the download outlives the request that started it
	ctx = context.WithoutCancel(ctx)
	v, err, shared := c.inflight.Do(e.FullName, func() (any, error) {
		if cur, err := c.Resolve(e.FullName); err == nil && cur.Origin == OriginLocal {
			return cur, nil
		}

		dest, err := c.store.Path(e.FullName)
		if err != nil {
			return Entry{}, err
		}
		log.Info("Non-local file, getting it from remote", "name", e.FullName, "url", e.RemoteURL)
		if err := c.fetcher.Fetch(ctx, e.RemoteURL, dest); err != nil {
			return Entry{}, err
		}
		if err := c.Build(ctx); err != nil {
			return Entry{}, err
		}

		local, err := c.Resolve(e.FullName)
		if err != nil {
			return Entry{}, err
		}
		if local.Origin != OriginLocal {
			return Entry{}, fmt.Errorf("%w: %s was downloaded but is not in the store", ErrNotFound, e.FullName)
		}
		return local, nil
	})
	if err != nil {
		return Entry{}, err
	}
	if shared {
		log.Debug("Shared in-flight download", "name", e.FullName)
	}
	return v.(Entry), nil
}

// LocalPath returns where a local entry lives on disk.
func (c *Catalog) LocalPath(e Entry) (string, error) {
	if e.Origin != OriginLocal {
		return "", fmt.Errorf("%w: %s is not stored locally", ErrNotFound, e.FullName)
	}
	return c.store.Path(e.Filename)
}

// FetchPath is the path on this server that serves fullName.
func (c *Catalog) FetchPath(fullName string) string {
	return c.prefix + "/get/" + fullName
}

// Snapshot returns the public view of the catalog with every URL rewritten
// onto baseURL, so remote sounds are fetched through this server.
func (c *Catalog) Snapshot(baseURL string) ([]File, error) {
	entries := c.Entries()
	files := make([]File, 0, len(entries))
	for _, e := range entries {
		f, err := c.file(baseURL, e)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func (c *Catalog) file(baseURL string, e Entry) (File, error) {
	u, err := naming.ReplaceURLPath(baseURL, c.FetchPath(e.FullName))
	if err != nil {
		return File{}, err
	}
	return File{
		Name:      e.ShortName,
		FullName:  e.FullName,
		URL:       u,
		Origin:    e.Origin,
		RemoteURL: e.RemoteURL,
	}, nil
}
