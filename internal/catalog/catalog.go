package catalog

import (
	"time"
)

type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Entry is one sound in the catalog. FullName is unique across the catalog.
type Entry struct {
	ShortName string
	FullName  string
	Origin    Origin
	Filename  string // name inside the store, local entries only
	RemoteURL string // remote entries only
}

// File is the public view of an Entry. URL always points back at this server.
type File struct {
	Name      string `json:"name"`
	FullName  string `json:"full_name"`
	URL       string `json:"url"`
	Origin    Origin `json:"origin"`
	RemoteURL string `json:"remote_url,omitempty"`
	Score     int    `json:"score,omitempty"`
}

type ManifestRecord struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Config struct {
	StoreDir        string
	ManifestDir     string
	RefreshInterval time.Duration
	RoutePrefix     string
}

const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultRoutePrefix     = "/files"
	DefaultSearchLimit     = 5
	MaxSearchLimit         = 100
)
