package catalog

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tidwall/jsonc"
)

// ParseManifest decodes a third-party manifest: a JSON array of {name, url}
// records. Comments and trailing commas are allowed.
func ParseManifest(data []byte) ([]ManifestRecord, error) {
	var records []ManifestRecord
	if err := json.Unmarshal(jsonc.ToJSON(data), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// LoadManifests reads every *.json and *.jsonc file of dir in filename order.
// A missing directory holds no manifests.
func LoadManifests(dir string) ([]ManifestRecord, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("Manifest directory does not exist", "dir", dir)
		return nil, nil
	}
	if err != nil {
		return nil, &BuildError{Op: "list manifests", Path: dir, Err: err}
	}

	var all []ManifestRecord
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".json" && ext != ".jsonc") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, &BuildError{Op: "read manifest", Path: p, Err: err}
		}
		records, err := ParseManifest(data)
		if err != nil {
			return nil, &BuildError{Op: "parse manifest", Path: p, Err: err}
		}
		log.Debug("Loaded manifest", "path", p, "records", len(records))
		all = append(all, records...)
	}
	return all, nil
}
