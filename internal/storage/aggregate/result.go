package aggregate

import (
	"sort"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/xferstat/internal/storage/parquet"
	"github.com/xtxerr/xferstat/internal/storage/types"
)

type fileKey struct {
	accession string
	filename  string
}

type yearKey struct {
	accession string
	year      int
}

// Result holds the counts accumulated by a scan. Counts are summed across
// batches; a key that reappears in a later batch is never overwritten.
type Result struct {
	projects map[string]int64
	files    map[fileKey]int64
	years    map[yearKey]int64

	// topFreq is the running frequency map behind TopK, updated per row
	// while scanning.
	topFreq map[string]int64

	total    int64
	skipped  int64
	batches  int64
	topK     int
	accuracy float64
}

func newResult(topK int, accuracy float64) *Result {
	return &Result{
		projects: make(map[string]int64),
		files:    make(map[fileKey]int64),
		years:    make(map[yearKey]int64),
		topFreq:  make(map[string]int64),
		topK:     topK,
		accuracy: accuracy,
	}
}

func (r *Result) add(row *parquet.TransferRow) {
	r.projects[row.Accession]++
	r.files[fileKey{row.Accession, row.Filename}]++
	r.years[yearKey{row.Accession, int(row.Year)}]++
	r.topFreq[row.Accession]++
	r.total++
}

// TotalRecords returns the number of rows counted.
func (r *Result) TotalRecords() int64 {
	return r.total
}

// SkippedRecords returns the number of rows excluded by year.
func (r *Result) SkippedRecords() int64 {
	return r.skipped
}

// Batches returns the number of batches scanned.
func (r *Result) Batches() int64 {
	return r.batches
}

// ProjectCounts returns the downloads per accession, most downloaded first,
// each with its percentile rank.
func (r *Result) ProjectCounts() []types.ProjectCount {
	out := make([]types.ProjectCount, 0, len(r.projects))
	for acc, n := range r.projects {
		out = append(out, types.ProjectCount{Accession: acc, Count: n})
	}

	// Ascending for ranking.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count < out[j].Count
		}
		return out[i].Accession < out[j].Accession
	})
	assignPercentiles(out)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Accession < out[j].Accession
	})
	return out
}

// assignPercentiles sets int(averageRank / n * 100) on counts sorted
// ascending. Tied counts share the mean of their 1-based rank positions.
func assignPercentiles(sorted []types.ProjectCount) {
	n := len(sorted)
	for i := 0; i < n; {
		j := i
		for j+1 < n && sorted[j+1].Count == sorted[i].Count {
			j++
		}
		avgRank := float64(i+1+j+1) / 2
		p := int(avgRank / float64(n) * 100)
		for k := i; k <= j; k++ {
			sorted[k].Percentile = p
		}
		i = j + 1
	}
}

// FileCounts returns the downloads per (accession, filename), ordered by
// accession then filename.
func (r *Result) FileCounts() []types.FileCount {
	out := make([]types.FileCount, 0, len(r.files))
	for k, n := range r.files {
		out = append(out, types.FileCount{Accession: k.accession, Filename: k.filename, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Accession != out[j].Accession {
			return out[i].Accession < out[j].Accession
		}
		return out[i].Filename < out[j].Filename
	})
	return out
}

// YearlyCounts returns one entry per accession with its downloads per year,
// years ascending.
func (r *Result) YearlyCounts() []types.YearlyCount {
	byAcc := make(map[string][]types.YearCount)
	for k, n := range r.years {
		byAcc[k.accession] = append(byAcc[k.accession], types.YearCount{Year: k.year, Count: n})
	}

	out := make([]types.YearlyCount, 0, len(byAcc))
	for acc, years := range byAcc {
		sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
		out = append(out, types.YearlyCount{Accession: acc, YearlyDownloads: years})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Accession < out[j].Accession })
	return out
}

// TopK returns the most downloaded accessions, at most K of them.
func (r *Result) TopK() []types.TopCount {
	out := make([]types.TopCount, 0, len(r.topFreq))
	for acc, n := range r.topFreq {
		out = append(out, types.TopCount{Accession: acc, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Accession < out[j].Accession
	})
	if len(out) > r.topK {
		out = out[:r.topK]
	}
	return out
}

// Distribution summarizes downloads per accession with a DDSketch.
func (r *Result) Distribution() (types.Distribution, error) {
	d := types.Distribution{
		Projects: int64(len(r.projects)),
		Records:  r.total,
	}
	if len(r.projects) == 0 {
		return d, nil
	}

	sketch, err := ddsketch.NewDefaultDDSketch(r.accuracy)
	if err != nil {
		return d, err
	}
	for _, n := range r.projects {
		if err := sketch.Add(float64(n)); err != nil {
			return d, err
		}
	}

	if d.Min, err = sketch.GetMinValue(); err != nil {
		return d, err
	}
	if d.Max, err = sketch.GetMaxValue(); err != nil {
		return d, err
	}
	if d.P50, err = sketch.GetValueAtQuantile(0.50); err != nil {
		return d, err
	}
	if d.P90, err = sketch.GetValueAtQuantile(0.90); err != nil {
		return d, err
	}
	if d.P99, err = sketch.GetValueAtQuantile(0.99); err != nil {
		return d, err
	}
	return d, nil
}
