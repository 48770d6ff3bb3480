package store

// Semantic document store: embedding-based top-K recall across logical
// collections, with keyword fallback when no embedding engine is set.

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskrelay/internal/embedding"
	"taskrelay/internal/logging"
)

// Logical collections of the semantic store.
const (
	CollectionTasks = "tasks"
	CollectionItems = "items"
)

// SemanticHit is one retrieval result. Distance is cosine distance
// (0 = identical); keyword-fallback hits carry distance 1.
type SemanticHit struct {
	Title       string
	Description string
	Distance    float64
	Metadata    map[string]interface{}
}

// InsertDocument stores a document in the given collection, embedding
// title and description when an engine is configured.
func (s *Store) InsertDocument(ctx context.Context, collection, title, description string, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var vec []float32
	var embeddingJSON interface{}
	if s.embeddingEngine != nil {
		var err error
		vec, err = s.embeddingEngine.Embed(ctx, title+"\n"+description)
		if err != nil {
			return fmt.Errorf("failed to generate embedding: %w", err)
		}
		data, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding: %w", err)
		}
		embeddingJSON = string(data)
	}

	metaJSON, _ := json.Marshal(metadata)
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO semantic_documents (id, collection, title, description, embedding, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, collection, title, description, embeddingJSON, string(metaJSON), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	if vec != nil {
		if err := s.vecIndexDocument(ctx, id, vec); err != nil {
			// The JSON embedding column still serves the scan path.
			logging.StoreDebug("Vec index update failed for document %s: %v", id, err)
		}
	}

	logging.StoreDebug("Document inserted: collection=%s title=%q", collection, title)
	return nil
}

// SearchCollection returns the top-K most similar documents in one
// collection, ordered by ascending cosine distance.
func (s *Store) SearchCollection(ctx context.Context, collection, query string, limit int) ([]SemanticHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 5
	}

	if s.embeddingEngine == nil {
		return s.searchKeyword(ctx, collection, query, limit)
	}

	queryVec, err := s.embeddingEngine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	// ANN path when the sqlite-vec index is available for this build.
	if hits, ok := s.searchVec(ctx, collection, queryVec, limit); ok {
		return hits, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT title, description, embedding, metadata FROM semantic_documents
		 WHERE collection = ? AND embedding IS NOT NULL`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SemanticHit
	for rows.Next() {
		var title, embeddingJSON string
		var description, metaJSON []byte
		if err := rows.Scan(&title, &description, &embeddingJSON, &metaJSON); err != nil {
			continue
		}

		var vec []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &vec); err != nil {
			continue
		}

		distance, err := embedding.CosineDistance(queryVec, vec)
		if err != nil {
			continue
		}

		hit := SemanticHit{
			Title:       title,
			Description: string(description),
			Distance:    distance,
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &hit.Metadata)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	logging.StoreDebug("Semantic search: collection=%s query_len=%d hits=%d", collection, len(query), len(hits))
	return hits, nil
}

// searchKeyword is the fallback search when no embedding engine is set.
func (s *Store) searchKeyword(ctx context.Context, collection, query string, limit int) ([]SemanticHit, error) {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	args := []interface{}{collection}
	for _, kw := range keywords {
		conditions = append(conditions, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, "%"+kw+"%", "%"+kw+"%")
	}
	args = append(args, limit)

	sqlQuery := fmt.Sprintf(
		`SELECT title, description, metadata FROM semantic_documents
		 WHERE collection = ? AND (%s) ORDER BY created_at DESC LIMIT ?`,
		strings.Join(conditions, " OR "),
	)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SemanticHit
	for rows.Next() {
		var title string
		var description, metaJSON []byte
		if err := rows.Scan(&title, &description, &metaJSON); err != nil {
			continue
		}
		hit := SemanticHit{
			Title:       title,
			Description: string(description),
			Distance:    1, // no similarity signal without embeddings
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &hit.Metadata)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
