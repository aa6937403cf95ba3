// Package corpus is the service facade over the document index, the corpus
// registry, the TF-IDF calculator, the stats cache and document collections. It also orders the
// durable side effects of an upload or delete (raw bytes, Postgres rows)
// around the in-memory commit so that a failure never leaves the index
// ahead of storage.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/collection"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/registry"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/statscache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tfidf"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/storage"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/tracing"
)

// DocumentStore is the durable document table. *store.Store satisfies it.
type DocumentStore interface {
	Save(ctx context.Context, doc *index.Document) error
	Delete(ctx context.Context, id string) error
	Load(ctx context.Context, fn func(*index.Document) error) (int, error)
}

// EventSink receives corpus change events. *analytics.Collector satisfies it.
type EventSink interface {
	Track(event analytics.CorpusEvent)
}

// Options wires the engine. Only Tokenizer is required; every other
// collaborator is optional and the engine degrades to in-memory operation
// without it.
type Options struct {
	Tokenizer   *tokenizer.Tokenizer
	Cache       *statscache.Cache
	Store       DocumentStore
	Collections CollectionStore
	Blobs       storage.Store
	Events      EventSink
	Stats       *analytics.ProcessingStats
	Metrics     *metrics.Metrics
	Limits      config.DocumentsConfig
}

// UploadRequest is one document to add. When StorageKey is set the bytes are
// already in blob storage (asynchronous ingest) and are not written again.
// The engine never deletes bytes it did not write: if such an upload fails,
// the caller that staged them removes them. Re-uploading the same bytes under
// the StorageKey of the document they already belong to returns that
// document, which makes redelivered ingest events idempotent.
type UploadRequest struct {
	OwnerID    string
	Title      string
	Data       []byte
	StorageKey string
}

// CorpusStats is a point-in-time view of the corpus.
type CorpusStats struct {
	Documents   int    `json:"documents"`
	Terms       int    `json:"terms"`
	Version     uint64 `json:"version"`
	CacheHits   int64  `json:"cache_hits"`
	CacheMisses int64  `json:"cache_misses"`
}

type Engine struct {
	tok             *tokenizer.Tokenizer
	registry        *registry.Registry
	index           *index.Index
	cache           *statscache.Cache
	collections     *collection.Manager
	store           DocumentStore
	collectionStore CollectionStore
	blobs           storage.Store
	events          EventSink
	stats           *analytics.ProcessingStats
	metrics         *metrics.Metrics
	limits          config.DocumentsConfig
	logger          *slog.Logger
}

const defaultCacheEntries = 1024

func NewEngine(opts Options) (*Engine, error) {
	if opts.Tokenizer == nil {
		return nil, errors.New("corpus engine requires a tokenizer")
	}
	limits := opts.Limits
	if limits.MaxBytes < 1 {
		limits.MaxBytes = config.Default().Documents.MaxBytes
	}
	if limits.MaxTermLimit < 1 {
		limits.MaxTermLimit = config.Default().Documents.MaxTermLimit
	}
	if limits.DefaultTermLimit < 1 || limits.DefaultTermLimit > limits.MaxTermLimit {
		limits.DefaultTermLimit = min(config.Default().Documents.DefaultTermLimit, limits.MaxTermLimit)
	}

	cache := opts.Cache
	if cache == nil {
		var err error
		cache, err = statscache.New(statscache.Options{MaxEntries: defaultCacheEntries}, nil)
		if err != nil {
			return nil, fmt.Errorf("creating stats cache: %w", err)
		}
	}

	reg := registry.New()
	return &Engine{
		tok:             opts.Tokenizer,
		registry:        reg,
		index:           index.New(reg, opts.Tokenizer),
		cache:           cache,
		collections:     collection.NewManager(),
		store:           opts.Store,
		collectionStore: opts.Collections,
		blobs:           opts.Blobs,
		events:          opts.Events,
		stats:           opts.Stats,
		metrics:         opts.Metrics,
		limits:          limits,
		logger:          slog.Default().With("component", "corpus-engine"),
	}, nil
}

// Limits returns the effective document limits.
func (e *Engine) Limits() config.DocumentsConfig {
	return e.limits
}

// UploadDocument validates, tokenizes and commits one document. Cancellation
// of ctx is honoured up to the first write; after that the upload runs to
// completion or is compensated.
func (e *Engine) UploadDocument(ctx context.Context, req UploadRequest) (*index.Document, error) {
	start := time.Now()
	log := logger.FromContext(ctx)
	ctx, span := tracing.StartChildSpan(ctx, "corpus.upload")
	defer span.End()

	doc, err := e.prepare(req)
	if err != nil {
		e.countUpload(err)
		return nil, err
	}
	span.SetAttr("document_id", doc.ID)
	span.SetAttr("terms", doc.DistinctCount())

	if existing, dup := e.index.FindByHash(doc.OwnerID, doc.ContentHash); dup {
		if isRedelivery(existing, doc) {
			log.Info("upload already applied", "document_id", existing.ID, "storage_key", doc.StorageKey)
			return existing, nil
		}
		e.countUpload(apperrors.ErrDuplicate)
		return nil, apperrors.Duplicate("content already uploaded as document %s", existing.ID)
	}
	if err := ctx.Err(); err != nil {
		e.countUpload(err)
		return nil, err
	}

	// From here on every step runs to completion so that compensation is
	// never skipped half way.
	wctx := context.WithoutCancel(ctx)

	wroteBlob := false
	if doc.StorageKey == "" && e.blobs != nil {
		doc.StorageKey = storage.Key(doc.OwnerID, doc.ID)
		if err := e.blobs.Put(wctx, doc.StorageKey, req.Data); err != nil {
			e.countUpload(err)
			return nil, fmt.Errorf("storing document bytes: %w", err)
		}
		wroteBlob = true
	}

	if e.store != nil {
		if err := e.store.Save(wctx, doc); err != nil {
			e.discardBlob(wctx, doc, wroteBlob)
			if existing, ok := e.appliedConcurrently(doc, err); ok {
				return existing, nil
			}
			e.countUpload(err)
			return nil, fmt.Errorf("saving document: %w", err)
		}
	}

	version, err := e.index.Insert(doc)
	if err != nil {
		if e.store != nil {
			if derr := e.store.Delete(wctx, doc.ID); derr != nil {
				log.Error("compensating delete failed", "document_id", doc.ID, "error", derr)
			}
		}
		e.discardBlob(wctx, doc, wroteBlob)
		if existing, ok := e.appliedConcurrently(doc, err); ok {
			return existing, nil
		}
		e.reportInvariant(ctx, "upload", err)
		e.countUpload(err)
		return nil, err
	}

	elapsed := time.Since(start)
	documents, terms, _ := e.registry.Stats()
	e.afterChange(ctx, analytics.EventDocumentUploaded, doc, version, documents, terms, elapsed)
	if e.stats != nil {
		e.stats.Record(elapsed)
	}
	if e.metrics != nil {
		e.metrics.DocumentsUploaded.WithLabelValues("ok").Inc()
		e.metrics.ProcessingDuration.Observe(elapsed.Seconds())
	}

	log.Info("document uploaded",
		"document_id", doc.ID,
		"owner_id", doc.OwnerID,
		"total_terms", doc.TotalTerms,
		"distinct_terms", doc.DistinctCount(),
		"corpus_version", version,
		"processing_ms", elapsed.Milliseconds(),
	)
	return doc, nil
}

// prepare turns the raw request into a document ready to commit.
func (e *Engine) prepare(req UploadRequest) (*index.Document, error) {
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		return nil, apperrors.Validation("owner id is required")
	}
	if len(req.Data) == 0 {
		return nil, apperrors.Validation("file is empty")
	}
	if len(req.Data) > e.limits.MaxBytes {
		return nil, apperrors.Validation("file exceeds %d bytes", e.limits.MaxBytes)
	}
	if !isText(req.Data) {
		return nil, apperrors.Validation("file is not UTF-8 text")
	}

	doc, err := index.Build(e.tok, uuid.NewString(), string(req.Data))
	if err != nil {
		return nil, err
	}
	doc.OwnerID = owner
	doc.Title = strings.TrimSpace(req.Title)
	if doc.Title == "" {
		doc.Title = "untitled"
	}
	doc.ContentHash = ContentHash(owner, req.Data)
	doc.SizeBytes = int64(len(req.Data))
	doc.StorageKey = req.StorageKey
	return doc, nil
}

// ContentHash identifies a document's bytes within one owner's documents.
func ContentHash(ownerID string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(ownerID))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func isText(data []byte) bool {
	return utf8.Valid(data) && !strings.ContainsRune(string(data), 0)
}

func isRedelivery(existing, doc *index.Document) bool {
	return doc.StorageKey != "" && existing.StorageKey == doc.StorageKey
}

// appliedConcurrently reports whether a duplicate error came from a
// redelivery of doc that a concurrent upload has already committed.
func (e *Engine) appliedConcurrently(doc *index.Document, err error) (*index.Document, bool) {
	if !errors.Is(err, apperrors.ErrDuplicate) {
		return nil, false
	}
	existing, ok := e.index.FindByHash(doc.OwnerID, doc.ContentHash)
	if !ok || !isRedelivery(existing, doc) {
		return nil, false
	}
	return existing, true
}

func (e *Engine) discardBlob(ctx context.Context, doc *index.Document, wrote bool) {
	if !wrote {
		return
	}
	if err := e.blobs.Delete(ctx, doc.StorageKey); err != nil {
		e.logger.Error("failed to remove orphaned document bytes", "key", doc.StorageKey, "error", err)
	}
}

// DeleteDocument removes a document durably first, then from the index, and
// finally drops its raw bytes.
func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	log := logger.FromContext(ctx)
	doc, err := e.index.GetDocument(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	wctx := context.WithoutCancel(ctx)

	removedRow := false
	if e.store != nil {
		if err := e.store.Delete(wctx, id); err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				return fmt.Errorf("deleting document: %w", err)
			}
			// A concurrent delete won, or the row was lost. The index
			// removal below settles which.
			log.Warn("document row already gone", "document_id", id)
		} else {
			removedRow = true
		}
	}

	_, version, err := e.index.RemoveDocument(id)
	if err != nil {
		if removedRow && errors.Is(err, apperrors.ErrNotFound) {
			// The row was ours, so the document is gone as requested. The
			// caller that won the index removal drops the bytes and emits
			// the event.
			log.Info("document removed from index by a concurrent delete", "document_id", id)
			return nil
		}
		e.reportInvariant(ctx, "delete", err)
		return err
	}
	e.collections.Forget(id)

	if e.blobs != nil && doc.StorageKey != "" {
		if err := e.blobs.Delete(wctx, doc.StorageKey); err != nil {
			log.Warn("failed to delete document bytes", "key", doc.StorageKey, "error", err)
		}
	}

	documents, terms, _ := e.registry.Stats()
	e.afterChange(ctx, analytics.EventDocumentDeleted, doc, version, documents, terms, 0)
	if e.metrics != nil {
		e.metrics.DocumentsDeleted.Inc()
	}
	log.Info("document deleted", "document_id", id, "corpus_version", version)
	return nil
}

// GetTfIdf returns the document's terms ordered by TF-IDF score. A limit of
// zero returns every term; otherwise it must be within 1..MaxTermLimit.
func (e *Engine) GetTfIdf(ctx context.Context, id string, limit int) (*tfidf.Result, error) {
	if err := e.checkLimit(limit); err != nil {
		return nil, err
	}
	ctx, span := tracing.StartChildSpan(ctx, "corpus.tfidf")
	defer span.End()

	version := e.registry.Version()
	res, hit, err := e.cache.GetOrCompute(ctx, id, version, func() (*tfidf.Result, error) {
		doc, snap, err := e.index.Read(id)
		if err != nil {
			return nil, err
		}
		return tfidf.Compute(doc, snap)
	})
	if err != nil {
		e.reportInvariant(ctx, "tfidf", err)
		return nil, err
	}
	span.SetAttr("cache_hit", hit)
	span.SetAttr("corpus_version", res.Version)
	if limit == 0 {
		return res, nil
	}
	return res.Top(limit), nil
}

func (e *Engine) GetDocument(_ context.Context, id string) (*index.Document, error) {
	return e.index.GetDocument(id)
}

// ListDocuments pages through ownerID's documents, newest first. An empty
// owner lists every document.
func (e *Engine) ListDocuments(ownerID string, offset, limit int) ([]*index.Document, int) {
	return e.index.List(ownerID, offset, limit)
}

// DocumentContent returns the raw bytes a document was uploaded with.
func (e *Engine) DocumentContent(ctx context.Context, id string) (*index.Document, []byte, error) {
	doc, err := e.index.GetDocument(id)
	if err != nil {
		return nil, nil, err
	}
	if e.blobs == nil || doc.StorageKey == "" {
		return nil, nil, apperrors.NotFound("content of document %s is not stored", id)
	}
	data, err := e.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

func (e *Engine) CorpusStats() CorpusStats {
	documents, terms, version := e.registry.Stats()
	hits, misses := e.cache.Stats()
	return CorpusStats{
		Documents:   documents,
		Terms:       terms,
		Version:     version,
		CacheHits:   hits,
		CacheMisses: misses,
	}
}

// Rehydrate rebuilds the index, the registry and the collections from the
// durable stores. It must
// run before the engine serves traffic. Stale cache entries from a previous
// process are purged first; a failed purge only costs memory because remote
// keys are namespaced by the cache epoch.
func (e *Engine) Rehydrate(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	if n := e.index.Len(); n != 0 {
		return 0, fmt.Errorf("rehydrate requires an empty corpus, have %d documents", n)
	}
	if err := e.cache.Purge(ctx); err != nil {
		e.logger.Warn("stats cache purge failed", "error", err)
	}

	start := time.Now()
	n, err := e.store.Load(ctx, func(doc *index.Document) error {
		_, err := e.index.Insert(doc)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("rehydrating corpus: %w", err)
	}
	if err := e.CheckConsistency(); err != nil {
		return n, err
	}
	collections, err := e.rehydrateCollections(ctx)
	if err != nil {
		return n, err
	}

	documents, terms, version := e.registry.Stats()
	if e.metrics != nil {
		e.metrics.SetCorpus(documents, terms, version)
	}
	e.logger.Info("corpus rehydrated",
		"documents", documents,
		"terms", terms,
		"collections", collections,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// CheckConsistency recomputes document frequencies from the live documents
// and compares them with the registry.
func (e *Engine) CheckConsistency() error {
	err := e.index.CheckConsistency()
	e.reportInvariant(context.Background(), "consistency", err)
	return err
}

func (e *Engine) afterChange(
	ctx context.Context,
	kind analytics.EventType,
	doc *index.Document,
	version uint64,
	documents, terms int,
	elapsed time.Duration,
) {
	if e.metrics != nil {
		e.metrics.SetCorpus(documents, terms, version)
	}
	if e.events == nil {
		return
	}
	e.events.Track(analytics.CorpusEvent{
		Type:          kind,
		DocumentID:    doc.ID,
		OwnerID:       doc.OwnerID,
		CorpusVersion: version,
		Documents:     documents,
		Terms:         terms,
		ProcessingMs:  elapsed.Milliseconds(),
		Timestamp:     time.Now().UTC(),
		RequestID:     logger.RequestID(ctx),
	})
}

func (e *Engine) reportInvariant(ctx context.Context, op string, err error) {
	if err == nil || !errors.Is(err, apperrors.ErrInvariantViolation) {
		return
	}
	logger.FromContext(ctx).Error("corpus invariant violated",
		"alert", true,
		"operation", op,
		"error", err,
	)
	if e.metrics != nil {
		e.metrics.InvariantViolations.Inc()
	}
}

func (e *Engine) countUpload(err error) {
	if e.metrics == nil {
		return
	}
	result := "error"
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		result = "invalid"
	case errors.Is(err, apperrors.ErrDuplicate):
		result = "duplicate"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "canceled"
	}
	e.metrics.DocumentsUploaded.WithLabelValues(result).Inc()
}
