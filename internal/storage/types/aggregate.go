package types

// ProjectCount is the total number of downloads of one accession.
type ProjectCount struct {
	Accession  string `json:"accession"`
	Count      int64  `json:"count"`
	Percentile int    `json:"percentile"`
}

// FileCount is the number of downloads of one file of an accession.
type FileCount struct {
	Accession string `json:"accession"`
	Filename  string `json:"filename"`
	Count     int64  `json:"count"`
}

// YearCount is one entry of a yearly download series.
type YearCount struct {
	Year  int   `json:"year"`
	Count int64 `json:"count"`
}

// YearlyCount nests the per-year downloads of one accession,
// ordered by year ascending.
type YearlyCount struct {
	Accession       string      `json:"accession"`
	YearlyDownloads []YearCount `json:"yearlyDownloads"`
}

// Total returns the sum over all years.
func (y *YearlyCount) Total() int64 {
	var n int64
	for _, c := range y.YearlyDownloads {
		n += c.Count
	}
	return n
}

// TopCount is one entry of the most downloaded accessions.
type TopCount struct {
	Accession string `json:"accession"`
	Count     int64  `json:"count"`
}

// Distribution summarizes downloads per accession.
type Distribution struct {
	Projects int64   `json:"projects"`
	Records  int64   `json:"records"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	P50      float64 `json:"p50"`
	P90      float64 `json:"p90"`
	P99      float64 `json:"p99"`
}
