package dataset

// Preview defaults.
const (
	DefaultSampleRows    = 10
	DefaultDistinctLimit = 20
	// distinctScanRows bounds how many rows are scanned for distinct values.
	distinctScanRows = 1000
)

// PreviewOptions controls how much of the table a preview carries.
type PreviewOptions struct {
	SampleRows    int
	DistinctLimit int
}

// ColumnSummary is the per-column part of a preview.
type ColumnSummary struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
	// Distinct lists up to DistinctLimit distinct present values in first-seen order.
	Distinct []Value `json:"distinct"`
	// DistinctCount counts distinct present values within the scanned rows.
	DistinctCount int `json:"distinct_count"`
	Missing       int `json:"missing"`
}

// PreviewResult is what a caller needs to populate column and parameter pickers.
type PreviewResult struct {
	Columns  []ColumnSummary `json:"columns"`
	Headers  []string        `json:"headers"`
	Sample   [][]Value       `json:"sample"`
	RowCount int             `json:"row_count"`
}

// Preview summarises ds.
func Preview(ds *Dataset, opts PreviewOptions) *PreviewResult {
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}
	if opts.DistinctLimit <= 0 {
		opts.DistinctLimit = DefaultDistinctLimit
	}

	res := &PreviewResult{
		Headers:  ds.Names(),
		RowCount: ds.NumRows(),
		Sample:   make([][]Value, 0, min(opts.SampleRows, ds.NumRows())),
	}
	for r := 0; r < ds.NumRows() && r < opts.SampleRows; r++ {
		res.Sample = append(res.Sample, ds.Row(r))
	}

	scan := min(ds.NumRows(), distinctScanRows)
	for c, col := range ds.columns {
		sum := ColumnSummary{Name: col.Name, Type: col.Type, Distinct: []Value{}}
		seen := make(map[Value]struct{})
		for r := 0; r < ds.NumRows(); r++ {
			v := ds.rows[r][c]
			if v.IsMissing() {
				sum.Missing++
				continue
			}
			if r >= scan {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			if len(sum.Distinct) < opts.DistinctLimit {
				sum.Distinct = append(sum.Distinct, v)
			}
		}
		sum.DistinctCount = len(seen)
		res.Columns = append(res.Columns, sum)
	}

	return res
}
