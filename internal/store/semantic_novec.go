//go:build !(sqlite_vec && cgo)

package store

import "context"

// Builds without the sqlite_vec tag keep the Go-side cosine scan; the ANN
// index hooks become no-ops.

func (s *Store) vecIndexDocument(context.Context, string, []float32) error {
	return nil
}

func (s *Store) searchVec(context.Context, string, []float32, int) ([]SemanticHit, bool) {
	return nil, false
}
