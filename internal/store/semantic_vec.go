//go:build sqlite_vec && cgo

package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"taskrelay/internal/logging"
)

// Shadow ANN index over semantic_documents, maintained alongside the JSON
// embedding column. Queries run vec_distance_cosine inside the database
// instead of scanning rows in Go.
const vecTableName = "semantic_documents_vec"

// encodeFloat32Slice encodes a vector as the little-endian float32 blob
// sqlite-vec expects.
func encodeFloat32Slice(vec []float32) []byte {
	blob := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// ensureVecTable creates the vec0 table once the embedding dimensionality
// is known. The dimension is fixed for the table's lifetime.
func (s *Store) ensureVecTable(dim int) error {
	if s.vecDim == dim {
		return nil
	}
	if s.vecDim != 0 {
		return fmt.Errorf("embedding dimension changed from %d to %d, vec index skipped", s.vecDim, dim)
	}

	query := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d], document_id TEXT)",
		vecTableName, dim)
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create vec table: %w", err)
	}
	s.vecDim = dim
	return nil
}

// vecIndexDocument mirrors one document's embedding into the ANN index.
// Caller holds s.mu.
func (s *Store) vecIndexDocument(ctx context.Context, id string, vec []float32) error {
	if err := s.ensureVecTable(len(vec)); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (embedding, document_id) VALUES (?, ?)", vecTableName),
		encodeFloat32Slice(vec), id)
	if err != nil {
		return fmt.Errorf("failed to index document in vec table: %w", err)
	}
	return nil
}

// searchVec runs the ANN query for one collection. ok=false means the
// index cannot serve the query and the caller should fall back to the
// Go-side scan. Caller holds s.mu (read).
func (s *Store) searchVec(ctx context.Context, collection string, query []float32, limit int) ([]SemanticHit, bool) {
	if s.vecDim == 0 || len(query) != s.vecDim {
		return nil, false
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT d.title, d.description, d.metadata, vec_distance_cosine(v.embedding, ?) AS distance
		FROM %s v
		JOIN semantic_documents d ON d.id = v.document_id
		WHERE d.collection = ?
		ORDER BY distance ASC
		LIMIT ?`, vecTableName),
		encodeFloat32Slice(query), collection, limit)
	if err != nil {
		logging.StoreDebug("Vec search failed, falling back to scan: %v", err)
		return nil, false
	}
	defer rows.Close()

	var hits []SemanticHit
	for rows.Next() {
		var title string
		var description, metaJSON []byte
		var distance float64
		if err := rows.Scan(&title, &description, &metaJSON, &distance); err != nil {
			continue
		}
		hit := SemanticHit{Title: title, Description: string(description), Distance: distance}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &hit.Metadata)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		logging.StoreDebug("Vec search scan failed, falling back: %v", err)
		return nil, false
	}

	logging.StoreDebug("Vec search: collection=%s hits=%d", collection, len(hits))
	return hits, true
}
