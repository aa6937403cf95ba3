package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	apimw "github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/api/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/collection"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
)

const maxCollectionBody = 64 << 10

type createCollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type memberResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type collectionResponse struct {
	*collection.Collection
	Documents []memberResponse `json:"documents"`
}

func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCollectionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, apperrors.Validation("request body exceeds %d bytes", maxCollectionBody))
			return
		}
		h.writeError(w, r, apperrors.Validation("invalid JSON body: %v", err))
		return
	}
	c, err := h.corpus.CreateCollection(r.Context(), apimw.Owner(r.Context()), req.Name, req.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/collections/"+c.ID)
	h.writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"collections": h.corpus.ListCollections(apimw.Owner(r.Context())),
	})
}

// GetCollection answers with the collection and the id and title of each
// live member.
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	c, err := h.ownedCollection(r, r.PathValue("cid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := collectionResponse{Collection: c, Documents: make([]memberResponse, 0, len(c.DocumentIDs))}
	for _, id := range c.DocumentIDs {
		doc, err := h.corpus.GetDocument(r.Context(), id)
		if err != nil {
			continue
		}
		resp.Documents = append(resp.Documents, memberResponse{ID: doc.ID, Title: doc.Title})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	c, err := h.ownedCollection(r, r.PathValue("cid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.corpus.DeleteCollection(r.Context(), c.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddToCollection(w http.ResponseWriter, r *http.Request) {
	c, doc, err := h.ownedMembership(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.corpus.AddToCollection(r.Context(), c, doc); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (h *Handler) RemoveFromCollection(w http.ResponseWriter, r *http.Request) {
	c, doc, err := h.ownedMembership(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.corpus.RemoveFromCollection(r.Context(), c, doc); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) CollectionStatistics(w http.ResponseWriter, r *http.Request) {
	limits := h.corpus.Limits()
	limit, err := queryInt(r, "limit", limits.DefaultTermLimit, 1, limits.MaxTermLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.ownedCollection(r, r.PathValue("cid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.corpus.CollectionStatistics(r.Context(), c.ID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ownedCollection hides collections of other owners behind a 404, like
// ownedDocument.
func (h *Handler) ownedCollection(r *http.Request, id string) (*collection.Collection, error) {
	c, err := h.corpus.GetCollection(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != apimw.Owner(r.Context()) {
		return nil, apperrors.NotFound("collection %s not found", id)
	}
	return c, nil
}

// ownedMembership resolves {cid} and {id}. The document is only checked for
// removal when it still exists, so a member can be dropped after the
// document is gone.
func (h *Handler) ownedMembership(r *http.Request) (string, string, error) {
	c, err := h.ownedCollection(r, r.PathValue("cid"))
	if err != nil {
		return "", "", err
	}
	doc, err := h.ownedDocument(r)
	switch {
	case err == nil:
		return c.ID, doc.ID, nil
	case r.Method == http.MethodDelete && errors.Is(err, apperrors.ErrNotFound):
		return c.ID, r.PathValue("id"), nil
	default:
		return "", "", err
	}
}
