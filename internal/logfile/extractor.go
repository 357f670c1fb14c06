package logfile

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	defaults "github.com/xtxerr/xferstat/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
	"github.com/xtxerr/xferstat/internal/logging"
	"github.com/xtxerr/xferstat/internal/storage/types"
)

var log = logging.Component("extractor")

// Column indexes of a transfer log line.
const (
	colTimestamp = iota
	colUser
	colBytes
	colPath
	colDirection
	colSession
	colStatus
	colCountry
	colRegion
	colCity
	colLocation
	colMethod
	colVisibility
)

// timestampLayout accepts up to microsecond fractions; CleanTimestamp
// truncates longer ones before parsing.
const timestampLayout = "2006-01-02T15:04:05.999999"

// SkipReason tells why a line did not become a record.
type SkipReason int

const (
	// Accepted means the line produced a record.
	Accepted SkipReason = iota
	SkipFieldCount
	SkipNoSeparator
	SkipPrefix
	SkipAccession
	SkipFilename
	SkipStatus
	SkipTimestamp

	numReasons
)

var reasonNames = [numReasons]string{
	Accepted:        "accepted",
	SkipFieldCount:  "field_count",
	SkipNoSeparator: "no_separator",
	SkipPrefix:      "prefix",
	SkipAccession:   "accession",
	SkipFilename:    "filename",
	SkipStatus:      "status",
	SkipTimestamp:   "timestamp",
}

func (r SkipReason) String() string {
	if r < 0 || r >= numReasons {
		return fmt.Sprintf("reason(%d)", int(r))
	}
	return reasonNames[r]
}

// Skipped reports whether the line was dropped.
func (r SkipReason) Skipped() bool {
	return r != Accepted
}

// SkipReasons lists every reason a line can be dropped for.
func SkipReasons() []SkipReason {
	out := make([]SkipReason, 0, numReasons-1)
	for r := SkipFieldCount; r < numReasons; r++ {
		out = append(out, r)
	}
	return out
}

// Extractor turns raw log lines into transfer records.
// It is safe for concurrent use.
type Extractor struct {
	filter *Filter
	source string
	log    *slog.Logger
}

// NewExtractor creates an extractor applying the given relevance filter.
func NewExtractor(filter *Filter) *Extractor {
	return &Extractor{filter: filter, log: log}
}

// WithSource returns a copy of the extractor whose diagnostics name path.
func (e *Extractor) WithSource(path string) *Extractor {
	c := *e
	c.source = path
	c.log = e.log.With("source", path)
	return &c
}

// ParseLine parses one raw line. lineNo is 1-based and only used in
// diagnostics. Malformed lines are logged at WARN; lines that are merely
// irrelevant are dropped silently.
func (e *Extractor) ParseLine(lineNo int, raw string) (types.TransferRecord, SkipReason) {
	rec, reason, perr := e.parse(lineNo, raw)
	if perr != nil {
		switch reason {
		case SkipFieldCount:
			e.log.Warn("unexpected column count",
				"line_no", lineNo,
				"expected", defaults.LogFieldCount,
				"found", len(perr.Row))
		default:
			e.log.Warn("skipping line",
				"line_no", lineNo,
				"reason", reason.String(),
				"row", perr.Row,
				"error", perr)
		}
	}
	return rec, reason
}

func (e *Extractor) parse(lineNo int, raw string) (types.TransferRecord, SkipReason, *xerrors.ParseError) {
	fields := SplitLine(raw)
	if len(fields) != defaults.LogFieldCount {
		return types.TransferRecord{}, SkipFieldCount, &xerrors.ParseError{
			Path:   e.source,
			Line:   lineNo,
			Reason: fmt.Sprintf("expected %d columns, found %d", defaults.LogFieldCount, len(fields)),
			Row:    fields,
		}
	}

	accession, filename, reason := e.relevant(fields)
	if reason.Skipped() {
		return types.TransferRecord{}, reason, nil
	}

	rawTS := strings.TrimSpace(fields[colTimestamp])
	ts, err := ParseTimestamp(rawTS)
	if err != nil {
		return types.TransferRecord{}, SkipTimestamp, &xerrors.ParseError{
			Path:   e.source,
			Line:   lineNo,
			Reason: "invalid timestamp",
			Row:    fields,
			Err:    err,
		}
	}

	bytes, _ := strconv.ParseInt(strings.TrimSpace(fields[colBytes]), 10, 64)

	return types.TransferRecord{
		Timestamp:    ts,
		User:         strings.TrimSpace(fields[colUser]),
		Bytes:        bytes,
		ResourcePath: fields[colPath],
		Direction:    strings.TrimSpace(fields[colDirection]),
		Session:      strings.TrimSpace(fields[colSession]),
		Completed:    NormalizeStatus(fields[colStatus]),
		Country:      fields[colCountry],
		Region:       CleanGeoValue(fields[colRegion]),
		City:         CleanGeoValue(fields[colCity]),
		Location:     strings.TrimSpace(fields[colLocation]),
		Method:       fields[colMethod],
		Visibility:   strings.TrimSpace(fields[colVisibility]),
		RawTimestamp: rawTS,
		Year:         ts.Year(),
		Month:        int(ts.Month()),
		Date:         time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
		Accession:    accession,
		Filename:     filename,
	}, Accepted, nil
}

// relevant applies the relevance rules in order and returns the accession
// and filename of a relevant line.
func (e *Extractor) relevant(fields []string) (string, string, SkipReason) {
	path := fields[colPath]

	if !strings.Contains(path, "/") {
		return "", "", SkipNoSeparator
	}
	if !e.filter.HasPrefix(path) {
		return "", "", SkipPrefix
	}
	accession, ok := e.filter.Accession(path)
	if !ok {
		return "", "", SkipAccession
	}
	filename := Filename(path)
	if filename == "" {
		return "", "", SkipFilename
	}
	if !e.filter.AllowsStatus(fields[colStatus]) {
		return "", "", SkipStatus
	}
	return accession, filename, Accepted
}

// SplitLine unescapes literal "\t" sequences, trims the line and splits it
// into tab separated fields.
func SplitLine(raw string) []string {
	line := strings.ReplaceAll(raw, `\t`, "\t")
	return strings.Split(strings.TrimSpace(line), "\t")
}

// CleanTimestamp truncates the fractional seconds of ts to microseconds and
// removes the trailing Z.
func CleanTimestamp(ts string) string {
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		frac := strings.TrimRight(ts[i+1:], "Z")
		if len(frac) > 6 {
			frac = frac[:6]
		}
		ts = ts[:i+1] + frac
	}
	return strings.TrimRight(ts, "Z")
}

// ParseTimestamp parses a log timestamp as UTC with microsecond precision.
func ParseTimestamp(ts string) (time.Time, error) {
	return time.ParseInLocation(timestampLayout, CleanTimestamp(ts), time.UTC)
}

// CleanGeoValue trims a geoip value and blanks unresolved placeholders
// such as {geoip_region_name} or %{geoip_city_name}.
func CleanGeoValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasSuffix(v, "}") && (strings.HasPrefix(v, "{") || strings.HasPrefix(v, "%{")) {
		return ""
	}
	return v
}
