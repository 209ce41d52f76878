// Package similarity scores a candidate cluster table against the
// reference signature.
package similarity

import (
	"errors"
	"slices"

	"codesig/internal/signature"
)

// ErrShape means a table has rows without a cluster id.
var ErrShape = errors.New("similarity: table rows are missing cluster ids")

// Result is the outcome of one comparison.
type Result struct {
	// Score is |Shared| / |reference ids|, in [0,1].
	Score float64
	// Shared lists the cluster ids present in both tables, ascending.
	Shared []int
}

// Compare measures how much of the reference's cluster-id set the
// candidate covers. The score is asymmetric: it is normalised by the
// reference set only. A reference without ids scores 0.
func Compare(candidate, reference signature.Table) (Result, error) {
	if candidate.HasMissingCluster() || reference.HasMissingCluster() {
		return Result{}, ErrShape
	}

	ref := reference.ClusterIDs()
	if len(ref) == 0 {
		return Result{Shared: []int{}}, nil
	}

	shared := []int{}
	for _, id := range candidate.ClusterIDs() {
		if _, ok := slices.BinarySearch(ref, id); ok {
			shared = append(shared, id)
		}
	}
	return Result{
		Score:  float64(len(shared)) / float64(len(ref)),
		Shared: shared,
	}, nil
}
