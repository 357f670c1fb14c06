package parquet

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/xferstat/internal/storage/types"
)

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch strings.ToLower(s) {
	case "snappy", "":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none":
		return CompressionNone
	default:
		return CompressionSnappy
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionGzip:
		return "gzip"
	default:
		return "none"
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// TransferRow is one row of a transfer store. The column set and order are
// fixed; every store written by this package has exactly this schema.
type TransferRow struct {
	Date            int32  `parquet:"date,date"` // days since 1970-01-01
	Year            int32  `parquet:"year"`
	Month           int32  `parquet:"month"`
	User            string `parquet:"user,dict"`
	Accession       string `parquet:"accession,dict"`
	Filename        string `parquet:"filename"`
	Completed       string `parquet:"completed,dict"`
	Country         string `parquet:"country,dict"`
	Method          string `parquet:"method,dict"`
	Timestamp       string `parquet:"timestamp"`
	GeoIPRegionName string `parquet:"geoip_region_name,dict"`
	GeoIPCityName   string `parquet:"geoip_city_name,dict"`
	GeoLocation     string `parquet:"geo_location"`
}

// Schema is the parquet schema of TransferRow.
var Schema = parquet.SchemaOf(TransferRow{})

// ColumnNames lists the store columns in schema order.
var ColumnNames = []string{
	"date", "year", "month", "user", "accession", "filename", "completed",
	"country", "method", "timestamp", "geoip_region_name", "geoip_city_name",
	"geo_location",
}

const secondsPerDay = 24 * 60 * 60

// DateToDays converts a UTC date to days since the Unix epoch.
func DateToDays(t time.Time) int32 {
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return int32(midnight.Unix() / secondsPerDay)
}

// DaysToDate converts days since the Unix epoch to a UTC date.
func DaysToDate(days int32) time.Time {
	return time.Unix(int64(days)*secondsPerDay, 0).UTC()
}

// DateString returns the row date as YYYY-MM-DD.
func (r *TransferRow) DateString() string {
	return DaysToDate(r.Date).Format("2006-01-02")
}

// MarshalJSON encodes the row with its date in ISO form.
func (r TransferRow) MarshalJSON() ([]byte, error) {
	type row struct {
		Date            string `json:"date"`
		Year            int32  `json:"year"`
		Month           int32  `json:"month"`
		User            string `json:"user"`
		Accession       string `json:"accession"`
		Filename        string `json:"filename"`
		Completed       string `json:"completed"`
		Country         string `json:"country"`
		Method          string `json:"method"`
		Timestamp       string `json:"timestamp"`
		GeoIPRegionName string `json:"geoip_region_name"`
		GeoIPCityName   string `json:"geoip_city_name"`
		GeoLocation     string `json:"geo_location"`
	}
	return json.Marshal(row{
		Date:            r.DateString(),
		Year:            r.Year,
		Month:           r.Month,
		User:            r.User,
		Accession:       r.Accession,
		Filename:        r.Filename,
		Completed:       r.Completed,
		Country:         r.Country,
		Method:          r.Method,
		Timestamp:       r.Timestamp,
		GeoIPRegionName: r.GeoIPRegionName,
		GeoIPCityName:   r.GeoIPCityName,
		GeoLocation:     r.GeoLocation,
	})
}

// RecordToRow converts a TransferRecord to a TransferRow.
func RecordToRow(r *types.TransferRecord) TransferRow {
	return TransferRow{
		Date:            DateToDays(r.Date),
		Year:            int32(r.Year),
		Month:           int32(r.Month),
		User:            r.User,
		Accession:       r.Accession,
		Filename:        r.Filename,
		Completed:       r.Completed,
		Country:         r.Country,
		Method:          r.Method,
		Timestamp:       r.RawTimestamp,
		GeoIPRegionName: r.Region,
		GeoIPCityName:   r.City,
		GeoLocation:     r.Location,
	}
}

// RowToRecord converts a TransferRow back to a TransferRecord. Columns the
// store does not keep are left empty.
func RowToRecord(r *TransferRow) types.TransferRecord {
	return types.TransferRecord{
		User:         r.User,
		Completed:    r.Completed,
		Country:      r.Country,
		Region:       r.GeoIPRegionName,
		City:         r.GeoIPCityName,
		Location:     r.GeoLocation,
		Method:       r.Method,
		RawTimestamp: r.Timestamp,
		Year:         int(r.Year),
		Month:        int(r.Month),
		Date:         DaysToDate(r.Date),
		Accession:    r.Accession,
		Filename:     r.Filename,
	}
}

// RecordsToRows converts a slice of records.
func RecordsToRows(records []types.TransferRecord) []TransferRow {
	rows := make([]TransferRow, len(records))
	for i := range records {
		rows[i] = RecordToRow(&records[i])
	}
	return rows
}

// SchemaSignature renders the leaf columns of s with their physical and
// logical types and repetition. Two stores can be concatenated row by row
// when their signatures are equal.
func SchemaSignature(s *parquet.Schema) string {
	var b strings.Builder
	writeFields(&b, "", s.Fields())
	return b.String()
}

func writeFields(b *strings.Builder, prefix string, fields []parquet.Field) {
	for _, f := range fields {
		name := prefix + f.Name()
		if !f.Leaf() {
			writeFields(b, name+".", f.Fields())
			continue
		}
		rep := "required"
		switch {
		case f.Optional():
			rep = "optional"
		case f.Repeated():
			rep = "repeated"
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s %s %s", rep, f.Type(), name)
	}
}
