package hapi

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrAllSourcesFailed indicates every config in a fallback chain failed or
// returned an empty dataset.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Timestamp layouts accepted for the leading time column.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
	"2006-01-02T15:04Z",
	"2006-002T15:04:05.000Z",
}

// Options parameterise the HAPI client.
type Options struct {
	InfoTimeout time.Duration
	DataTimeout time.Duration
	UserAgent   string
}

// Client fetches structured time-series data from HAPI servers with
// ordered fallback across redundant sources.
type Client struct {
	opts       Options
	logger     zerolog.Logger
	infoClient *http.Client
	dataClient *http.Client
}

// NewClient constructs a HAPI client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.InfoTimeout <= 0 {
		opts.InfoTimeout = 10 * time.Second
	}
	if opts.DataTimeout <= 0 {
		opts.DataTimeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "swxmon/1.0"
	}

	return &Client{
		opts:       opts,
		logger:     logger.With().Str("component", "hapi_client").Logger(),
		infoClient: &http.Client{Timeout: opts.InfoTimeout},
		dataClient: &http.Client{Timeout: opts.DataTimeout},
	}
}

// FetchInfo retrieves parameter metadata for a dataset. Failures are
// surfaced as errors, never retried here.
func (c *Client) FetchInfo(ctx context.Context, server, dataset string) (*Info, error) {
	endpoint := strings.TrimRight(server, "/") + "/info?id=" + url.QueryEscape(dataset)

	body, err := c.get(ctx, c.infoClient, endpoint)
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode info for %s: %w", dataset, err)
	}
	if len(info.Parameters) == 0 {
		return nil, fmt.Errorf("info for %s declares no parameters", dataset)
	}
	return &info, nil
}

// FetchData retrieves and decodes the tabular body for one source config.
// Requested parameters are reordered into the server's declared order:
// the wire protocol aligns response columns to that canonical order, so a
// client-side reorder would misalign data.
func (c *Client) FetchData(ctx context.Context, cfg SourceConfig) (*DataSet, error) {
	info, err := c.FetchInfo(ctx, cfg.Server, cfg.Dataset)
	if err != nil {
		return nil, err
	}

	selected := selectParameters(info.Parameters, cfg.Parameters)
	if len(selected) == 0 {
		return nil, fmt.Errorf("dataset %s offers none of the requested parameters", cfg.Dataset)
	}

	names := make([]string, len(selected))
	for i, p := range selected {
		names[i] = p.Name
	}

	query := url.Values{}
	query.Set("id", cfg.Dataset)
	query.Set("parameters", strings.Join(names, ","))
	query.Set("time.min", cfg.TimeMin.UTC().Format(time.RFC3339))
	query.Set("time.max", cfg.TimeMax.UTC().Format(time.RFC3339))
	endpoint := strings.TrimRight(cfg.Server, "/") + "/data?" + query.Encode()

	body, err := c.get(ctx, c.dataClient, endpoint)
	if err != nil {
		return nil, err
	}

	ds := parseCSV(body, selected)
	ds.Server = cfg.Server
	ds.Dataset = cfg.Dataset
	return ds, nil
}

// FetchWithFallback iterates configs in order and returns the first
// successfully decoded, non-empty dataset. Every attempt outcome is
// reported so callers can feed the health tracker; a failure only
// advances the chain.
func (c *Client) FetchWithFallback(ctx context.Context, configs []SourceConfig) (*DataSet, []Attempt, error) {
	if len(configs) == 0 {
		return nil, nil, errors.New("no sources configured")
	}

	attempts := make([]Attempt, 0, len(configs))
	var lastErr error

	for i, cfg := range configs {
		start := time.Now()
		ds, err := c.FetchData(ctx, cfg)
		attempt := Attempt{Endpoint: cfg.Endpoint(), Duration: time.Since(start)}

		if err == nil && len(ds.Rows) == 0 {
			err = fmt.Errorf("dataset %s returned no rows", cfg.Dataset)
		}
		if err != nil {
			attempt.Err = err
			attempts = append(attempts, attempt)
			lastErr = err
			c.logger.Warn().Err(err).
				Str("server", cfg.Server).
				Str("dataset", cfg.Dataset).
				Int("position", i).
				Msg("source failed, trying next")
			continue
		}

		attempt.Rows = len(ds.Rows)
		attempts = append(attempts, attempt)
		ds.Fallback = i > 0
		return ds, attempts, nil
	}

	return nil, attempts, fmt.Errorf("%w (%d tried): %w", ErrAllSourcesFailed, len(configs), lastErr)
}

func (c *Client) get(ctx context.Context, client *http.Client, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hapi server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// selectParameters computes the ordered intersection of the requested
// names with the server's declared parameter order. The leading time
// parameter is implicit and never requested explicitly.
func selectParameters(declared []Parameter, requested []string) []Parameter {
	want := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		want[name] = struct{}{}
	}

	selected := make([]Parameter, 0, len(requested))
	for i, p := range declared {
		if i == 0 && p.Type == TypeIsotime {
			continue
		}
		if _, ok := want[p.Name]; ok {
			selected = append(selected, p)
		}
	}
	return selected
}

// parseCSV decodes the tabular body row by row. Column 0 is the
// timestamp; rows with unparseable timestamps are dropped. Each selected
// parameter consumes Width() columns named name_0, name_1, ... when
// multi-dimensional.
func parseCSV(body []byte, selected []Parameter) *DataSet {
	fields := expandFields(selected)
	ds := &DataSet{Fields: fields, Rows: make([]Row, 0, 64)}

	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var totalCells, presentCells int

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed line; skip it, not the whole body.
			continue
		}
		if len(record) < 2 {
			continue
		}

		ts, ok := parseTimestamp(record[0])
		if !ok {
			continue
		}

		row := Row{Timestamp: ts, Values: make(map[string]Value, len(fields))}
		col := 1
		for _, param := range selected {
			width := param.Width()
			for sub := 0; sub < width; sub++ {
				name := subColumnName(param.Name, width, sub)
				if col >= len(record) {
					row.Values[name] = missingValue()
					totalCells++
					continue
				}
				value, verr := decodeCell(record[col], param)
				if verr != "" {
					ds.ValidationErrors = append(ds.ValidationErrors, verr)
				}
				row.Values[name] = value
				totalCells++
				if value.Kind != KindMissing {
					presentCells++
				}
				col++
			}
		}
		ds.Rows = append(ds.Rows, row)
	}

	if totalCells > 0 {
		ds.Completeness = float64(presentCells) / float64(totalCells)
	}
	return ds
}

func expandFields(selected []Parameter) []string {
	fields := make([]string, 0, len(selected))
	for _, p := range selected {
		width := p.Width()
		for sub := 0; sub < width; sub++ {
			fields = append(fields, subColumnName(p.Name, width, sub))
		}
	}
	return fields
}

func subColumnName(name string, width, sub int) string {
	if width == 1 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, sub)
}

func decodeCell(cell string, param Parameter) (Value, string) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return missingValue(), ""
	}
	if param.Fill != nil && cell == *param.Fill {
		return missingValue(), ""
	}

	switch param.Type {
	case TypeDouble:
		number, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return missingValue(), fmt.Sprintf("%s: cannot coerce %q to double", param.Name, cell)
		}
		return Value{Kind: KindNumber, Number: number}, ""
	default:
		return Value{Kind: KindText, Text: cell}, ""
	}
}

func parseTimestamp(cell string) (time.Time, bool) {
	cell = strings.TrimSpace(cell)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
