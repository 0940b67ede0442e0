// internal/rag/retriever.go
package rag

import (
	"context"
	"discord-video-bot/internal/models"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when search has no embedder or the store
// cannot run vector queries.
var ErrUnavailable = errors.New("memory search is not available")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Store interface {
	IsPostgres() bool
	SearchMemories(ctx context.Context, userID, groupID int64, embedding []float32, limit int) ([]models.Memory, error)
}

// Retriever finds past generations whose prompt is close to a query.
type Retriever struct {
	store    Store
	embedder Embedder
}

func NewRetriever(store Store, embedder Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

// Available reports whether SearchMemories can run.
func (r *Retriever) Available() bool {
	return r != nil && r.embedder != nil && r.store.IsPostgres()
}

// SearchMemories returns up to limit of the user's entries in the group,
// nearest prompt first.
func (r *Retriever) SearchMemories(ctx context.Context, userID, groupID int64, query string, limit int) ([]models.Memory, error) {
	if !r.Available() {
		return nil, ErrUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty search query")
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	memories, err := r.store.SearchMemories(ctx, userID, groupID, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	return memories, nil
}
