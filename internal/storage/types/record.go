package types

import "time"

// Direction of a transfer as recorded by the transfer service.
const (
	DirectionOut = "OUT"
	DirectionIn  = "IN"
)

// TransferRecord is one accepted line of a transfer log.
// Field order follows the source columns; derived fields come last.
type TransferRecord struct {
	// Source columns
	Timestamp    time.Time // parsed, microsecond precision, UTC
	User         string    // user hash
	Bytes        int64     // transferred size, 0 if not a number
	ResourcePath string    // full path of the transferred resource
	Direction    string    // OUT / IN
	Session      string    // session hash
	Completed    string    // normalized completion status (lower, trimmed)
	Country      string
	Region       string // cleaned geoip region name
	City         string // cleaned geoip city name
	Location     string // "lat,lon", trimmed
	Method       string // ftp, http, fasp-aspera, gridftp-globus ...
	Visibility   string // public / private

	// RawTimestamp is the timestamp column exactly as it appeared (trimmed).
	RawTimestamp string

	// Derived
	Year      int
	Month     int
	Date      time.Time // UTC midnight of Timestamp
	Accession string    // first accession pattern match in ResourcePath
	Filename  string    // last segment of ResourcePath
}

// Batch is an ordered group of records. All batches of a stream hold
// exactly the configured batch size except the last one.
type Batch struct {
	Records []TransferRecord
}

// NewBatch creates a new batch with the given capacity.
func NewBatch(capacity int) *Batch {
	return &Batch{
		Records: make([]TransferRecord, 0, capacity),
	}
}

// Add appends a record to the batch.
func (b *Batch) Add(r TransferRecord) {
	b.Records = append(b.Records, r)
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Records)
}

// Clear removes all records, keeping the capacity.
func (b *Batch) Clear() {
	b.Records = b.Records[:0]
}
