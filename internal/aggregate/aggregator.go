// Package aggregate merges per-region results into the artifact set.
//
// Regions are collected in memory, one lane per artifact kind, and every
// artifact is written exactly once when the run is flushed. Lanes are
// ordered by the region's position in the catalog, so the output does not
// depend on the order in which regions complete.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/inventory/pkg/inventory"
)

const filePerm = 0o644

// entry is one region's contribution to a lane.
type entry struct {
	seq       int
	region    string
	accountID string
	items     []any
}

func entryLess(a, b entry) bool {
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.region < b.region
}

// lane holds the contributions of one artifact kind.
type lane struct {
	mu      sync.Mutex
	entries *btree.BTreeG[entry]
}

func newLane() *lane {
	return &lane{entries: btree.NewG[entry](16, entryLess)}
}

func (l *lane) put(e entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.ReplaceOrInsert(e)
}

// document concatenates the lane in region order. ok is false when nothing contributed.
func (l *lane) document(a Artifact) (doc Document, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.entries.Len() == 0 {
		return Document{}, false
	}

	doc = Document{Field: a.Field, Version: a.Version, Items: []any{}}
	l.entries.Ascend(func(e entry) bool {
		if doc.AccountID == "" {
			doc.AccountID = e.accountID
		}
		doc.Items = append(doc.Items, e.items...)
		return true
	})
	return doc, true
}

// ArtifactResult reports what Flush did with one artifact.
type ArtifactResult struct {
	Artifact Artifact
	Path     string
	Count    int
	// Removed is set when the kind had no contributions and a previous file was deleted.
	Removed bool
	Err     error
}

// Written reports whether the artifact file was written this run.
func (r ArtifactResult) Written() bool {
	return r.Err == nil && r.Count > 0
}

// Aggregator collects region bundles and writes the artifact set.
// Add is safe for concurrent use.
type Aggregator struct {
	dir   string
	order map[string]int
	lanes map[inventory.Kind]*lane
}

// New returns an Aggregator writing into dir. regions fixes the output order;
// regions not listed sort after them by name.
func New(dir string, regions []string) *Aggregator {
	if dir == "" {
		dir = "."
	}

	order := make(map[string]int, len(regions))
	for i, r := range regions {
		if _, dup := order[r]; !dup {
			order[r] = i
		}
	}

	lanes := make(map[inventory.Kind]*lane, len(artifacts))
	for _, a := range artifacts {
		lanes[a.Kind] = newLane()
	}

	return &Aggregator{dir: dir, order: order, lanes: lanes}
}

// Dir returns the output directory.
func (a *Aggregator) Dir() string {
	return a.dir
}

// Add records a region's bundle. Empty collections contribute nothing.
// Adding the same region again replaces its earlier contribution.
func (a *Aggregator) Add(b *inventory.RegionBundle) {
	if b == nil {
		return
	}

	seq, ok := a.order[b.Region]
	if !ok {
		seq = len(a.order)
	}

	for kind, items := range bundleItems(b) {
		if len(items) == 0 {
			continue
		}
		a.lanes[kind].put(entry{
			seq:       seq,
			region:    b.Region,
			accountID: b.AccountID,
			items:     items,
		})
	}
}

// Emit implements emitter.Emitter. Failed regions contribute nothing.
func (a *Aggregator) Emit(_ context.Context, result inventory.RegionResult) error {
	if result.Error != nil || result.Bundle == nil {
		return nil
	}
	a.Add(result.Bundle)
	return nil
}

// Close implements emitter.Emitter.
func (a *Aggregator) Close() error {
	return nil
}

// Document returns the document that Flush would write for kind.
func (a *Aggregator) Document(kind inventory.Kind) (Document, bool) {
	art, ok := ArtifactFor(kind)
	if !ok {
		return Document{}, false
	}
	return a.lanes[kind].document(art)
}

// Flush writes every artifact once. A kind without contributions gets no file
// and any file left from an earlier run is removed. A failed artifact does not
// stop the others; all failures are joined in the returned error.
// A cancelled context writes nothing.
func (a *Aggregator) Flush(ctx context.Context) ([]ArtifactResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return nil, &PersistenceError{Artifact: "output directory", Path: a.dir, Err: err}
	}

	results := make([]ArtifactResult, 0, len(artifacts))
	var errs []error

	for _, art := range artifacts {
		res := a.flushOne(art)
		if res.Err != nil {
			errs = append(errs, res.Err)
			log.Error().Err(res.Err).Str("artifact", art.File).Msg("artifact write failed")
		}
		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

func (a *Aggregator) flushOne(art Artifact) ArtifactResult {
	path := filepath.Join(a.dir, art.File)
	res := ArtifactResult{Artifact: art, Path: path}

	doc, ok := a.lanes[art.Kind].document(art)
	if !ok {
		err := os.Remove(path)
		switch {
		case err == nil:
			res.Removed = true
			log.Debug().Str("artifact", art.File).Msg("stale artifact removed")
		case !errors.Is(err, os.ErrNotExist):
			res.Err = &PersistenceError{Artifact: art.File, Path: path, Err: fmt.Errorf("remove stale file: %w", err)}
		}
		return res
	}

	data, err := encode(doc)
	if err != nil {
		res.Err = &PersistenceError{Artifact: art.File, Path: path, Err: err}
		return res
	}

	if err := renameio.WriteFile(path, data, filePerm); err != nil {
		res.Err = &PersistenceError{Artifact: art.File, Path: path, Err: err}
		return res
	}

	res.Count = len(doc.Items)
	log.Info().
		Str("artifact", art.File).
		Int("count", res.Count).
		Msg("artifact written")
	return res
}

func bundleItems(b *inventory.RegionBundle) map[inventory.Kind][]any {
	return map[inventory.Kind][]any{
		inventory.KindInstances:         toAny(b.Instances),
		inventory.KindSpotInstances:     toAny(b.SpotInstances()),
		inventory.KindReservations:      toAny(b.Reservations),
		inventory.KindLoadBalancers:     toAny(b.LoadBalancers),
		inventory.KindV2LoadBalancers:   toAny(b.V2LoadBalancers),
		inventory.KindAutoScalingGroups: toAny(b.AutoScalingGroups),
	}
}

func toAny[T any](items []T) []any {
	out := make([]any, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}
