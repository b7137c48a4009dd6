// Package scenario lists the challenge definitions available on the site and
// watches them for changes.
package scenario

import (
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/navigator/codebook/internal/challenge"
	"github.com/navigator/codebook/internal/storage"
)

// Dir is the scenarios directory relative to the site root.
const Dir = "assets/data/scenarios"

// Summary describes one scenario for listings.
type Summary struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Module     string `json:"module,omitempty"`
	Objectives int    `json:"objectives"`
	Evidence   int    `json:"evidence"`
	Checksum   string `json:"checksum"`
	Error      string `json:"error,omitempty"`
}

// Catalog reads scenario definitions from a site store.
type Catalog struct {
	store  storage.Provider
	logger *slog.Logger
}

// NewCatalog returns a catalog over store, which is rooted at the site root.
func NewCatalog(store storage.Provider, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: store, logger: logger}
}

// List returns every {id}/{id}.json definition, sorted by ID. Definitions
// that fail to decode are listed with Error set.
func (c *Catalog) List() ([]Summary, error) {
	files, err := c.store.List(Dir, ".json")
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, f := range files {
		id, ok := definitionID(f.Path)
		if !ok {
			continue
		}
		s := Summary{ID: id, Checksum: f.Checksum}
		data, err := c.store.Read(f.Path)
		if err != nil {
			s.Error = err.Error()
			out = append(out, s)
			continue
		}
		def, err := challenge.Decode(data, id)
		if err != nil {
			c.logger.Warn("catalog: invalid definition", slog.String("path", f.Path), slog.String("error", err.Error()))
			s.Error = err.Error()
			out = append(out, s)
			continue
		}
		s.Title = def.Title
		s.Module = def.Module
		s.Objectives = len(def.Objectives)
		s.Evidence = len(def.EvidenceFiles)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the summary of one scenario.
func (c *Catalog) Get(id string) (Summary, bool) {
	all, err := c.List()
	if err != nil {
		return Summary{}, false
	}
	for _, s := range all {
		if s.ID == id {
			return s, true
		}
	}
	return Summary{}, false
}

// definitionID extracts id from Dir/{id}/{id}.json.
func definitionID(p string) (string, bool) {
	rest, ok := strings.CutPrefix(p, Dir+"/")
	if !ok {
		return "", false
	}
	dir, file := path.Split(rest)
	id := strings.TrimSuffix(dir, "/")
	if id == "" || strings.Contains(id, "/") || file != id+".json" {
		return "", false
	}
	return id, true
}

// IDFromPath returns the scenario a site-relative path belongs to.
func IDFromPath(p string) (string, bool) {
	rest, ok := strings.CutPrefix(p, Dir+"/")
	if !ok {
		return "", false
	}
	id, _, found := strings.Cut(rest, "/")
	if !found || id == "" {
		return "", false
	}
	return id, true
}
