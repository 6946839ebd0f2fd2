package chatbot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fyrsmithlabs/denguex/internal/knowledge"
	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
	"go.uber.org/zap"
)

// DefaultBatchSize bounds texts per EmbedDocuments call during builds.
const DefaultBatchSize = 64

// RecordID names the vector for the i-th variant of an entry.
func RecordID(kbID string, i int) string {
	return kbID + "#" + strconv.Itoa(i)
}

// variantRefs flattens entries into (record id, kb id, variant) triples.
func variantRefs(entries []knowledge.Entry) []vectorstore.Record {
	var refs []vectorstore.Record
	for _, e := range entries {
		for i, v := range e.Variants() {
			refs = append(refs, vectorstore.Record{
				ID:      RecordID(e.ID, i),
				KBID:    e.ID,
				Variant: v,
			})
		}
	}
	return refs
}

// BuildRecords embeds every question variant of every entry, one vector per
// variant, in batches of batchSize.
func BuildRecords(ctx context.Context, embedder vectorstore.Embedder, entries []knowledge.Entry, batchSize int) ([]vectorstore.Record, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	records := variantRefs(entries)
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		texts := make([]string, 0, end-start)
		for _, r := range records[start:end] {
			texts = append(texts, r.Variant)
		}
		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding variants %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedding variants %d-%d: got %d vectors for %d texts", start, end-1, len(vectors), len(texts))
		}
		for i, v := range vectors {
			records[start+i].Vector = v
		}
	}
	return records, nil
}

// BuildIndex embeds the entries and adds them to index. It returns the
// number of vectors added.
func BuildIndex(ctx context.Context, embedder vectorstore.Embedder, index vectorstore.Index, entries []knowledge.Entry, batchSize int, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	records, err := BuildRecords(ctx, embedder, entries, batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		logger.Warn("knowledge base is empty, index left empty")
		return 0, nil
	}
	if err := index.Add(ctx, records); err != nil {
		return 0, fmt.Errorf("adding %d vectors: %w", len(records), err)
	}
	logger.Info("index built",
		zap.Int("entries", len(entries)),
		zap.Int("vectors", len(records)),
	)
	return len(records), nil
}

// AddEntry embeds a new entry and makes it answerable. The entry must be
// valid and its id unused. It is for library callers that grow an engine
// they own; served engines come from bundles and are never mutated, so no
// command or handler calls it. Embedding happens before the write lock is taken
// so readers are blocked only for the insert itself.
func (e *Engine) AddEntry(ctx context.Context, entry knowledge.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if _, exists := e.catalog.Get(entry.ID); exists {
		return fmt.Errorf("%w: %q", knowledge.ErrDuplicateID, entry.ID)
	}

	records, err := BuildRecords(ctx, e.embedder, []knowledge.Entry{entry}, DefaultBatchSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Re-check under the lock; another writer may have won.
	if _, exists := e.catalog.Get(entry.ID); exists {
		return fmt.Errorf("%w: %q", knowledge.ErrDuplicateID, entry.ID)
	}
	if err := e.index.Add(ctx, records); err != nil {
		return fmt.Errorf("adding vectors for %q: %w", entry.ID, err)
	}
	if err := e.catalog.Add(entry); err != nil {
		return err
	}

	e.logger.Info("knowledge base entry added",
		zap.String("kb_id", entry.ID),
		zap.Int("variants", len(records)),
	)
	return nil
}
