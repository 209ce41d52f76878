// Package signature holds cluster tables and persists the reference
// signature.
package signature

import (
	"slices"
)

// MissingCluster marks a row whose cluster id field was absent.
const MissingCluster = -1

// Row assigns one embedded chunk to a cluster.
type Row struct {
	ID      string
	Cluster int
	// Source is the file the row came from; informational only.
	Source string
	// Vector is the chunk embedding, kept only for reference rows.
	Vector []float32
}

// Table is an ordered list of cluster assignments. Two tables are compared
// only through their sets of cluster ids.
type Table struct {
	Rows []Row
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Empty reports whether the table has no rows.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// ClusterIDs returns the distinct cluster ids, sorted ascending.
func (t Table) ClusterIDs() []int {
	seen := make(map[int]struct{}, len(t.Rows))
	ids := make([]int, 0)
	for _, r := range t.Rows {
		if _, ok := seen[r.Cluster]; ok {
			continue
		}
		seen[r.Cluster] = struct{}{}
		ids = append(ids, r.Cluster)
	}
	slices.Sort(ids)
	return ids
}

// HasMissingCluster reports whether any row lacks a cluster id.
func (t Table) HasMissingCluster() bool {
	return slices.ContainsFunc(t.Rows, func(r Row) bool { return r.Cluster < 0 })
}

// Concat returns the rows of all tables in order.
func Concat(tables ...Table) Table {
	var out Table
	for _, t := range tables {
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out
}
