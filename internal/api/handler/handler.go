// Package handler serves the corpus REST API. It only translates HTTP to
// corpus engine calls: parsing, owner filtering and error mapping live here,
// everything else is the engine's job.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	apimw "github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/api/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/collection"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tfidf"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/logger"
)

// Corpus is the engine surface the API uses. *corpus.Engine satisfies it.
type Corpus interface {
	UploadDocument(ctx context.Context, req corpus.UploadRequest) (*index.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	GetTfIdf(ctx context.Context, id string, limit int) (*tfidf.Result, error)
	GetDocument(ctx context.Context, id string) (*index.Document, error)
	ListDocuments(ownerID string, offset, limit int) ([]*index.Document, int)
	DocumentContent(ctx context.Context, id string) (*index.Document, []byte, error)
	CorpusStats() corpus.CorpusStats
	Limits() config.DocumentsConfig

	CreateCollection(ctx context.Context, ownerID, name, description string) (*collection.Collection, error)
	ListCollections(ownerID string) []*collection.Collection
	GetCollection(ctx context.Context, id string) (*collection.Collection, error)
	DeleteCollection(ctx context.Context, id string) error
	AddToCollection(ctx context.Context, collectionID, documentID string) error
	RemoveFromCollection(ctx context.Context, collectionID, documentID string) error
	CollectionStatistics(ctx context.Context, collectionID string, limit int) (*tfidf.AggregateResult, error)
	CollectionTfIdf(ctx context.Context, collectionID, documentID string, limit int) (*tfidf.Result, error)
}

// Submitter queues a document for asynchronous ingestion.
type Submitter interface {
	Submit(ctx context.Context, ownerID, title string, data []byte) (ingest.IngestEvent, error)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// multipartOverhead leaves room for boundaries and form fields on top
	// of the file itself.
	multipartOverhead = 1 << 20
)

type Handler struct {
	corpus    Corpus
	submitter Submitter
	logger    *slog.Logger
}

// New builds the handler. submitter may be nil, in which case the async
// ingest endpoint answers 503.
func New(c Corpus, submitter Submitter) *Handler {
	return &Handler{
		corpus:    c,
		submitter: submitter,
		logger:    slog.Default().With("component", "api-handler"),
	}
}

type uploadResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	TotalTerms    int       `json:"total_terms"`
	DistinctTerms int       `json:"distinct_terms"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
}

type documentResponse struct {
	*index.Document
	DistinctTerms int `json:"distinct_terms"`
}

type listResponse struct {
	Documents []documentResponse `json:"documents"`
	Total     int                `json:"total"`
	Offset    int                `json:"offset"`
	Limit     int                `json:"limit"`
}

// UploadDocument accepts either a multipart form with a "file" field and an
// optional "title", or the raw text as the request body with the title in
// X-Document-Title.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	title, data, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.corpus.UploadDocument(r.Context(), corpus.UploadRequest{
		OwnerID: apimw.Owner(r.Context()),
		Title:   title,
		Data:    data,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/documents/"+doc.ID)
	h.writeJSON(w, http.StatusCreated, uploadResponse{
		ID:            doc.ID,
		Title:         doc.Title,
		TotalTerms:    doc.TotalTerms,
		DistinctTerms: doc.DistinctCount(),
		SizeBytes:     doc.SizeBytes,
		CreatedAt:     doc.CreatedAt,
	})
}

// SubmitDocument stages the upload for the ingest consumer and answers 202.
func (h *Handler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	if h.submitter == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "asynchronous ingest is disabled"})
		return
	}
	title, data, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	event, err := h.submitter.Submit(r.Context(), apimw.Owner(r.Context()), title, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":      "queued",
		"storage_key": event.StorageKey,
	})
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	maxBytes := h.corpus.Limits().MaxBytes
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType != "multipart/form-data" {
		data, err := readLimited(r.Body, maxBytes)
		return r.Header.Get("X-Document-Title"), data, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes)+multipartOverhead)
	if err := r.ParseMultipartForm(int64(maxBytes)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, apperrors.Validation("file exceeds %d bytes", maxBytes)
		}
		return "", nil, apperrors.Validation("invalid multipart form: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, apperrors.Validation("form field \"file\" is required")
	}
	defer file.Close()

	data, err := readLimited(file, maxBytes)
	if err != nil {
		return "", nil, err
	}
	title := r.FormValue("title")
	if strings.TrimSpace(title) == "" {
		title = header.Filename
	}
	return title, data, nil
}

// readLimited reads at most maxBytes+1 bytes so that oversized input is
// detected without buffering all of it.
func readLimited(r io.Reader, maxBytes int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(maxBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) > maxBytes {
		return nil, apperrors.Validation("file exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0, 0, -1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	docs, total := h.corpus.ListDocuments(apimw.Owner(r.Context()), offset, limit)
	resp := listResponse{
		Documents: make([]documentResponse, len(docs)),
		Total:     total,
		Offset:    offset,
		Limit:     limit,
	}
	for i, d := range docs {
		resp.Documents[i] = documentResponse{Document: d, DistinctTerms: d.DistinctCount()}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.ownedDocument(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, documentResponse{Document: doc, DistinctTerms: doc.DistinctCount()})
}

func (h *Handler) DocumentContent(w http.ResponseWriter, r *http.Request) {
	if _, err := h.ownedDocument(r); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, data, err := h.corpus.DocumentContent(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Title}))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.ownedDocument(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.corpus.DeleteDocument(r.Context(), doc.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetTfIdf(w http.ResponseWriter, r *http.Request) {
	limits := h.corpus.Limits()
	limit, err := queryInt(r, "limit", limits.DefaultTermLimit, 1, limits.MaxTermLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.ownedDocument(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var res *tfidf.Result
	if cid := r.URL.Query().Get("collection_id"); cid != "" {
		var c *collection.Collection
		if c, err = h.ownedCollection(r, cid); err == nil {
			res, err = h.corpus.CollectionTfIdf(r.Context(), c.ID, doc.ID, limit)
		}
	} else {
		res, err = h.corpus.GetTfIdf(r.Context(), doc.ID, limit)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CorpusStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.corpus.CorpusStats())
}

// ownedDocument loads the {id} document and hides documents of other owners
// behind a 404.
func (h *Handler) ownedDocument(r *http.Request) (*index.Document, error) {
	id := r.PathValue("id")
	doc, err := h.corpus.GetDocument(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != apimw.Owner(r.Context()) {
		return nil, apperrors.NotFound("document %s not found", id)
	}
	return doc, nil
}

// queryInt parses an optional integer parameter within [lo, hi]. hi < 0
// means unbounded.
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi >= 0 && v > hi) {
		if hi >= 0 {
			return 0, apperrors.Validation("%s must be an integer between %d and %d", name, lo, hi)
		}
		return 0, apperrors.Validation("%s must be an integer >= %d", name, lo)
	}
	return v, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its status code. Server-side failures are logged
// and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := apperrors.Message(err, http.StatusText(status))
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "request timeout"
	case errors.Is(err, context.Canceled):
		status, message = 499, "request canceled"
	case status >= http.StatusInternalServerError:
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
