package signature

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMissingCluster means a CSV table has no cluster column.
var ErrMissingCluster = errors.New("signature: table has no cluster column")

// WriteCSV writes t with columns id, cluster, source.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "cluster", "source"}); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if err := cw.Write([]string{r.ID, strconv.Itoa(r.Cluster), r.Source}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table written by WriteCSV. The id column may also be
// named "token"; source is optional. A header without a cluster column
// yields ErrMissingCluster.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}

	idCol, clusterCol, sourceCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id", "token":
			idCol = i
		case "cluster":
			clusterCol = i
		case "source":
			sourceCol = i
		}
	}
	if clusterCol < 0 {
		return Table{}, ErrMissingCluster
	}

	var t Table
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("line %d: %w", line, err)
		}

		row := Row{Cluster: MissingCluster}
		if idCol >= 0 && idCol < len(rec) {
			row.ID = rec[idCol]
		} else {
			row.ID = strconv.Itoa(line - 2)
		}
		if clusterCol < len(rec) && strings.TrimSpace(rec[clusterCol]) != "" {
			c, err := strconv.Atoi(strings.TrimSpace(rec[clusterCol]))
			if err != nil {
				return Table{}, fmt.Errorf("line %d: cluster %q: %w", line, rec[clusterCol], err)
			}
			row.Cluster = c
		}
		if sourceCol >= 0 && sourceCol < len(rec) {
			row.Source = rec[sourceCol]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
