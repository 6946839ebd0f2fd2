package chatbot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/denguex/internal/config"
	"github.com/fyrsmithlabs/denguex/internal/knowledge"
	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
	"go.uber.org/zap"
)

// Bundle layout.
const (
	ManifestFile = "manifest.json"
	CatalogFile  = "kb.jsonl"
	// VectorsFile holds records for the memory provider.
	VectorsFile = "vectors.jsonl"
	// VectorsDir holds the chromem database.
	VectorsDir = "vectors"
)

// dropTimeout bounds dropping one superseded collection.
const dropTimeout = 30 * time.Second

// ModelEmbedder is an embedder that can name its model, so a bundle can
// refuse to be served with a different one.
type ModelEmbedder interface {
	vectorstore.Embedder
	Model() string
	Dimension() int
}

// Manifest describes a built index bundle. It is written last, so its
// presence means the bundle is complete.
type Manifest struct {
	Model      string    `json:"model"`
	Dimension  int       `json:"dimension"`
	Provider   string    `json:"provider"`
	Collection string    `json:"collection,omitempty"`
	Entries    int       `json:"entries"`
	Vectors    int       `json:"vectors"`
	BuiltAt    time.Time `json:"built_at"`

	// PreviousCollection is the collection of the bundle this one replaced.
	// It may still be serving until every server has reloaded.
	PreviousCollection string `json:"previous_collection,omitempty"`
}

// Bundle is an opened index bundle ready to back an Engine.
type Bundle struct {
	Dir      string
	Manifest Manifest
	Catalog  *knowledge.Catalog
	Index    vectorstore.Index
}

type vectorLine struct {
	ID      string    `json:"id"`
	KBID    string    `json:"kb_id"`
	Variant string    `json:"variant"`
	Vector  []float32 `json:"vector"`
}

// BuildBundle embeds the catalog and writes the bundle to dir.
//
// Chromem and Qdrant vectors go into a fresh collection named after the
// base collection and the build time, so an engine serving the previous
// bundle is never touched. The manifest records the new collection, and the
// serving Holder drops the superseded one once it has swapped. BuildBundle
// itself drops the collection from two builds back, keeping the two newest.
func BuildBundle(ctx context.Context, dir string, catalog *knowledge.Catalog, embedder ModelEmbedder, vs config.VectorStoreConfig, batchSize int, logger *zap.Logger) (_ *Manifest, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating bundle directory: %w", err)
	}
	builtAt := time.Now().UTC()
	prev, _ := ReadManifest(dir)

	entries := catalog.Entries()
	records, err := BuildRecords(ctx, embedder, entries, batchSize)
	if err != nil {
		return nil, err
	}

	dimension := embedder.Dimension()
	if len(records) > 0 {
		dimension = len(records[0].Vector)
	}

	store := vs
	if usesCollections(vs.Provider) {
		store.Collection = buildCollection(vs.Collection, builtAt)
	}
	index, err := vectorstore.NewIndex(ctx, store, filepath.Join(dir, VectorsDir), dimension, logger)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	defer index.Close()
	var collection string
	if d, ok := index.(vectorstore.Dropper); ok {
		collection = d.Collection()
		defer func() {
			if err != nil {
				dropQuietly(ctx, d, logger)
			}
		}()
	}

	if err := index.Reset(ctx); err != nil {
		return nil, fmt.Errorf("resetting vector store: %w", err)
	}
	if len(records) > 0 {
		if err := index.Add(ctx, records); err != nil {
			return nil, fmt.Errorf("adding vectors: %w", err)
		}
	}

	if vs.Provider == "memory" || vs.Provider == "" {
		if err := writeVectors(filepath.Join(dir, VectorsFile), records); err != nil {
			return nil, err
		}
	}

	if err := writeFileAtomic(filepath.Join(dir, CatalogFile), func(w *bufio.Writer) error {
		return knowledge.WriteJSONL(w, entries)
	}); err != nil {
		return nil, fmt.Errorf("writing catalog: %w", err)
	}

	m := Manifest{
		Model:      embedder.Model(),
		Dimension:  dimension,
		Provider:   providerName(vs.Provider),
		Collection: collection,
		Entries:    len(entries),
		Vectors:    len(records),
		BuiltAt:    builtAt,
	}
	if prev.Provider == m.Provider && prev.Collection != collection {
		m.PreviousCollection = prev.Collection
	}
	if err := writeFileAtomic(filepath.Join(dir, ManifestFile), func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	if stale := prev.PreviousCollection; stale != "" && prev.Provider == m.Provider &&
		stale != m.Collection && stale != m.PreviousCollection {
		dropCollection(ctx, vs, dir, dimension, stale, logger)
	}

	logger.Info("index bundle built",
		zap.String("dir", dir),
		zap.String("provider", m.Provider),
		zap.String("collection", m.Collection),
		zap.String("model", m.Model),
		zap.Int("entries", m.Entries),
		zap.Int("vectors", m.Vectors),
	)
	return &m, nil
}

// ReadManifest reads a bundle manifest.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, fmt.Errorf("%w: reading manifest: %v", ErrConfiguration, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: malformed manifest: %v", ErrConfiguration, err)
	}
	return m, nil
}

// OpenBundle opens a bundle for serving. Missing or malformed files, a model
// or provider mismatch and a vector count that disagrees with the manifest
// all fail with ErrConfiguration.
func OpenBundle(ctx context.Context, dir string, embedder ModelEmbedder, vs config.VectorStoreConfig, logger *zap.Logger) (*Bundle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if want := providerName(vs.Provider); m.Provider != want {
		return nil, fmt.Errorf("%w: bundle built for provider %q, configured %q", ErrConfiguration, m.Provider, want)
	}
	if model := embedder.Model(); model != "" && m.Model != model {
		return nil, fmt.Errorf("%w: bundle built with model %q, embedder uses %q", ErrConfiguration, m.Model, model)
	}
	if dim := embedder.Dimension(); dim > 0 && m.Vectors > 0 && m.Dimension != dim {
		return nil, fmt.Errorf("%w: bundle dimension %d, embedder dimension %d", ErrConfiguration, m.Dimension, dim)
	}

	catalog, err := knowledge.LoadFile(filepath.Join(dir, CatalogFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if catalog.Len() != m.Entries {
		return nil, fmt.Errorf("%w: catalog has %d entries, manifest says %d", ErrConfiguration, catalog.Len(), m.Entries)
	}

	if m.Collection != "" {
		vs.Collection = m.Collection
	}
	index, err := vectorstore.NewIndex(ctx, vs, filepath.Join(dir, VectorsDir), m.Dimension, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: opening vector store: %v", ErrConfiguration, err)
	}

	if m.Provider == "memory" {
		records, err := readVectors(filepath.Join(dir, VectorsFile))
		if err != nil {
			index.Close()
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if len(records) > 0 {
			if err := index.Add(ctx, records); err != nil {
				index.Close()
				return nil, fmt.Errorf("%w: loading vectors: %v", ErrConfiguration, err)
			}
		}
	}

	count, err := index.Count(ctx)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("%w: counting vectors: %v", ErrConfiguration, err)
	}
	if count != m.Vectors {
		index.Close()
		return nil, fmt.Errorf("%w: index holds %d vectors, manifest says %d", ErrConfiguration, count, m.Vectors)
	}

	logger.Info("index bundle opened",
		zap.String("dir", dir),
		zap.String("provider", m.Provider),
		zap.String("collection", m.Collection),
		zap.Int("entries", m.Entries),
		zap.Int("vectors", m.Vectors),
		zap.Time("built_at", m.BuiltAt),
	)
	return &Bundle{Dir: dir, Manifest: m, Catalog: catalog, Index: index}, nil
}

// BundleExists reports whether dir holds a manifest.
func BundleExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil
}

// usesCollections reports whether provider keeps vectors in a named
// collection that outlives the building process.
func usesCollections(provider string) bool {
	return provider == "chromem" || provider == "qdrant"
}

// buildCollection names the collection for a build at t.
func buildCollection(base string, t time.Time) string {
	return vectorstore.CollectionName(fmt.Sprintf("%s_%d", vectorstore.CollectionName(base), t.UnixNano()))
}

// dropCollection opens the named collection only to drop it.
func dropCollection(ctx context.Context, vs config.VectorStoreConfig, dir string, dimension int, name string, logger *zap.Logger) {
	vs.Collection = name
	index, err := vectorstore.NewIndex(ctx, vs, filepath.Join(dir, VectorsDir), dimension, logger)
	if err != nil {
		logger.Warn("opening stale collection", zap.String("collection", name), zap.Error(err))
		return
	}
	defer index.Close()
	if d, ok := index.(vectorstore.Dropper); ok {
		dropQuietly(ctx, d, logger)
	}
}

// dropQuietly drops d, logging rather than returning a failure. It runs
// even when ctx is already cancelled.
func dropQuietly(ctx context.Context, d vectorstore.Dropper, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dropTimeout)
	defer cancel()
	if err := d.Drop(ctx); err != nil {
		logger.Warn("dropping collection", zap.String("collection", d.Collection()), zap.Error(err))
	}
}

func providerName(p string) string {
	if p == "" {
		return "memory"
	}
	return p
}

func writeVectors(path string, records []vectorstore.Record) error {
	err := writeFileAtomic(path, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		for _, r := range records {
			if err := enc.Encode(vectorLine{ID: r.ID, KBID: r.KBID, Variant: r.Variant, Vector: r.Vector}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing vectors: %w", err)
	}
	return nil
}

func readVectors(path string) ([]vectorstore.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vectors: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var records []vectorstore.Record
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var v vectorLine
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			return nil, fmt.Errorf("vectors line %d: %w", line, err)
		}
		records = append(records, vectorstore.Record{ID: v.ID, KBID: v.KBID, Variant: v.Variant, Vector: v.Vector})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vectors: %w", err)
	}
	return records, nil
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it into place.
func writeFileAtomic(path string, write func(*bufio.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
