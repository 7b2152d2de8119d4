package catalog

import (
	"context"
)

//go:generate mockgen -source=ports.go -destination=mock_fetcher_test.go -package=catalog

// Fetcher downloads url into dest, replacing dest only once the download is complete.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}
