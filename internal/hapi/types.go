package hapi

import (
	"math"
	"time"
)

// Parameter types declared by a HAPI info response.
const (
	TypeDouble  = "double"
	TypeString  = "string"
	TypeIsotime = "isotime"
)

// Parameter describes one column group in a HAPI dataset.
type Parameter struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Units string  `json:"units,omitempty"`
	Size  []int   `json:"size,omitempty"`
	Fill  *string `json:"fill"`
}

// Width returns the number of wire columns the parameter occupies.
func (p Parameter) Width() int {
	width := 1
	for _, dim := range p.Size {
		if dim > 0 {
			width *= dim
		}
	}
	return width
}

// Info is the decoded response of a HAPI /info request.
type Info struct {
	Version    string      `json:"HAPI"`
	StartDate  string      `json:"startDate"`
	StopDate   string      `json:"stopDate"`
	Parameters []Parameter `json:"parameters"`
}

// SourceConfig identifies one (server, dataset, parameters, range)
// combination. Fallback chains are ordered slices of these.
type SourceConfig struct {
	Server     string
	Dataset    string
	Parameters []string
	TimeMin    time.Time
	TimeMax    time.Time
}

// Endpoint renders the source identity used for health tracking.
func (c SourceConfig) Endpoint() string {
	return c.Server + "#" + c.Dataset
}

// ValueKind discriminates decoded cell variants.
type ValueKind int

const (
	// KindMissing marks a cell equal to the empty string or the
	// parameter's declared fill value.
	KindMissing ValueKind = iota
	// KindNumber marks a successfully coerced double column.
	KindNumber
	// KindText marks a string or isotime column passed through verbatim.
	KindText
)

// Value is a decoded cell: a tagged variant rather than an any-typed blob.
type Value struct {
	Kind   ValueKind
	Number float64
	Text   string
}

// Float returns the numeric value, or NaN for missing/text cells.
func (v Value) Float() float64 {
	if v.Kind == KindNumber {
		return v.Number
	}
	return math.NaN()
}

func missingValue() Value {
	return Value{Kind: KindMissing, Number: math.NaN()}
}

// Row is one decoded data record keyed by expanded column name.
type Row struct {
	Timestamp time.Time
	Values    map[string]Value
}

// DataSet is the decoded result of a HAPI data fetch.
type DataSet struct {
	Server  string
	Dataset string
	// Fields lists the expanded column names in wire order
	// (multi-dimensional parameters appear as name_0, name_1, ...).
	Fields []string
	Rows   []Row
	// Completeness is the fraction of non-missing cells, 0..1.
	Completeness float64
	// ValidationErrors collects per-cell coercion failures; a failed cell
	// decodes to missing and never aborts the parse.
	ValidationErrors []string
	// Fallback is true when the dataset came from a non-primary source.
	Fallback bool
}

// Latest returns the most recent row, or false when the set is empty.
func (d *DataSet) Latest() (Row, bool) {
	if d == nil || len(d.Rows) == 0 {
		return Row{}, false
	}
	return d.Rows[len(d.Rows)-1], true
}

// LatestNumbers extracts the numeric fields of the most recent row,
// skipping missing and text cells.
func (d *DataSet) LatestNumbers() map[string]float64 {
	row, ok := d.Latest()
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(row.Values))
	for name, v := range row.Values {
		if v.Kind == KindNumber {
			out[name] = v.Number
		}
	}
	return out
}

// Attempt records the outcome of one fallback-chain fetch for health
// tracking purposes.
type Attempt struct {
	Endpoint string
	Duration time.Duration
	Rows     int
	Err      error
}
