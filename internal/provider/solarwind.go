package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// headerTable is the NOAA "products" wire shape: a JSON array whose first
// row is the column header and whose cells are strings or null. Anything
// else is rejected at the boundary.
type headerTable [][]*string

func decodeHeaderTable(body []byte) (header []string, rows [][]*string, err error) {
	var table headerTable
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, nil, fmt.Errorf("unexpected product shape: %w", err)
	}
	if len(table) < 2 {
		return nil, nil, fmt.Errorf("product table has no data rows")
	}

	header = make([]string, len(table[0]))
	for i, cell := range table[0] {
		if cell == nil {
			return nil, nil, fmt.Errorf("product header contains null column name")
		}
		header[i] = *cell
	}
	return header, table[1:], nil
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if col == name {
			return i
		}
	}
	return -1
}

// latestCell extracts a named column from the most recent row, walking
// backwards past null cells.
func latestCell(header []string, rows [][]*string, name string) (float64, bool) {
	idx := columnIndex(header, name)
	if idx < 0 {
		return 0, false
	}
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if idx >= len(row) || row[idx] == nil {
			continue
		}
		value, err := strconv.ParseFloat(*row[idx], 64)
		if err != nil {
			continue
		}
		return value, true
	}
	return 0, false
}

func latestTimestamp(header []string, rows [][]*string) time.Time {
	idx := columnIndex(header, "time_tag")
	if idx < 0 || len(rows) == 0 {
		return time.Time{}
	}
	last := rows[len(rows)-1]
	if idx >= len(last) || last[idx] == nil {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05.000", "2006-01-02 15:04:05", time.RFC3339} {
		if ts, err := time.Parse(layout, *last[idx]); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// SolarWindPlasma fetches the real-time solar wind plasma product
// (density, speed, temperature) measured at L1.
type SolarWindPlasma struct {
	http httpClient
	path string
}

// NewSolarWindPlasma constructs the plasma fetcher.
func NewSolarWindPlasma(opts Options) *SolarWindPlasma {
	return &SolarWindPlasma{http: newHTTPClient(opts), path: "/products/solar-wind/plasma-1-day.json"}
}

func (f *SolarWindPlasma) Name() string     { return "solar_wind_plasma" }
func (f *SolarWindPlasma) Endpoint() string { return f.http.baseURL + f.path }

// Fetch decodes the latest plasma row.
func (f *SolarWindPlasma) Fetch(ctx context.Context) (Observation, error) {
	body, err := f.http.get(ctx, f.path)
	if err != nil {
		return Observation{}, err
	}

	header, rows, err := decodeHeaderTable(body)
	if err != nil {
		return Observation{}, err
	}

	obs := Observation{Values: make(map[string]float64, 3), ObservedAt: latestTimestamp(header, rows)}
	wanted := map[string]string{
		"speed":       "solar_wind_speed",
		"density":     "solar_wind_density",
		"temperature": "solar_wind_temperature",
	}

	present := 0
	for column, name := range wanted {
		if value, ok := latestCell(header, rows, column); ok {
			obs.Values[name] = value
			present++
		} else {
			obs.ValidationErrors = append(obs.ValidationErrors, fmt.Sprintf("plasma: no usable %s value", column))
		}
	}
	obs.Completeness = float64(present) / float64(len(wanted))
	return obs, nil
}

// SolarWindMag fetches the interplanetary magnetic field product
// (GSM components and total field) measured at L1.
type SolarWindMag struct {
	http httpClient
	path string
}

// NewSolarWindMag constructs the IMF fetcher.
func NewSolarWindMag(opts Options) *SolarWindMag {
	return &SolarWindMag{http: newHTTPClient(opts), path: "/products/solar-wind/mag-1-day.json"}
}

func (f *SolarWindMag) Name() string     { return "solar_wind_mag" }
func (f *SolarWindMag) Endpoint() string { return f.http.baseURL + f.path }

// Fetch decodes the latest IMF row plus the trailing southward-Bz
// duration, a storm precursor.
func (f *SolarWindMag) Fetch(ctx context.Context) (Observation, error) {
	body, err := f.http.get(ctx, f.path)
	if err != nil {
		return Observation{}, err
	}

	header, rows, err := decodeHeaderTable(body)
	if err != nil {
		return Observation{}, err
	}

	obs := Observation{Values: make(map[string]float64, 3), ObservedAt: latestTimestamp(header, rows)}
	wanted := map[string]string{
		"bz_gsm": "bz_gsm",
		"bt":     "bt",
	}

	present := 0
	for column, name := range wanted {
		if value, ok := latestCell(header, rows, column); ok {
			obs.Values[name] = value
			present++
		} else {
			obs.ValidationErrors = append(obs.ValidationErrors, fmt.Sprintf("mag: no usable %s value", column))
		}
	}
	obs.Completeness = float64(present) / float64(len(wanted))
	obs.Values["southward_duration_minutes"] = southwardDuration(header, rows)
	return obs, nil
}

// southwardDuration counts trailing samples with Bz < 0, scaled to the
// product's one-minute cadence.
func southwardDuration(header []string, rows [][]*string) float64 {
	idx := columnIndex(header, "bz_gsm")
	if idx < 0 {
		return 0
	}
	minutes := 0.0
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if idx >= len(row) || row[idx] == nil {
			continue
		}
		value, err := strconv.ParseFloat(*row[idx], 64)
		if err != nil {
			continue
		}
		if value >= 0 {
			break
		}
		minutes++
	}
	return minutes
}
