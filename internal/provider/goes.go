package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// goesEntry is the GOES JSON wire shape: flat objects with a time tag,
// a flux value, and an energy channel label.
type goesEntry struct {
	TimeTag string   `json:"time_tag"`
	Flux    *float64 `json:"flux"`
	Energy  string   `json:"energy"`
}

const (
	xrayLongChannel  = "0.1-0.8nm"
	protonTenMeV     = ">=10 MeV"
	goesTimeLayout   = "2006-01-02T15:04:05Z"
	magSampleMinimum = 2
)

// GOESXray fetches the primary GOES X-ray flux feed and reports the
// long-channel flux used for flare classification.
type GOESXray struct {
	http httpClient
	path string
}

// NewGOESXray constructs the X-ray fetcher.
func NewGOESXray(opts Options) *GOESXray {
	return &GOESXray{http: newHTTPClient(opts), path: "/json/goes/primary/xrays-1-day.json"}
}

func (f *GOESXray) Name() string     { return "goes_xray" }
func (f *GOESXray) Endpoint() string { return f.http.baseURL + f.path }

// Fetch decodes the latest long-channel flux and the 24h maximum.
func (f *GOESXray) Fetch(ctx context.Context) (Observation, error) {
	body, err := f.http.get(ctx, f.path)
	if err != nil {
		return Observation{}, err
	}

	var entries []goesEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return Observation{}, fmt.Errorf("unexpected xray shape: %w", err)
	}

	var current, max float64
	var seen int
	var last time.Time
	for _, entry := range entries {
		if entry.Energy != xrayLongChannel || entry.Flux == nil {
			continue
		}
		seen++
		current = *entry.Flux
		if *entry.Flux > max {
			max = *entry.Flux
		}
		if ts, err := time.Parse(goesTimeLayout, entry.TimeTag); err == nil {
			last = ts
		}
	}

	if seen == 0 {
		return Observation{}, fmt.Errorf("xray feed has no %s samples", xrayLongChannel)
	}

	obs := Observation{
		Values: map[string]float64{
			"xray_flux":     current,
			"xray_flux_max": max,
		},
		Completeness: 1,
		ObservedAt:   last,
	}
	return obs, nil
}

// GOESProtons fetches the integral proton flux feed and reports the
// >=10 MeV channel in pfu, the SEP event trigger.
type GOESProtons struct {
	http httpClient
	path string
}

// NewGOESProtons constructs the proton fetcher.
func NewGOESProtons(opts Options) *GOESProtons {
	return &GOESProtons{http: newHTTPClient(opts), path: "/json/goes/primary/integral-protons-1-day.json"}
}

func (f *GOESProtons) Name() string     { return "goes_protons" }
func (f *GOESProtons) Endpoint() string { return f.http.baseURL + f.path }

// Fetch decodes the latest >=10 MeV integral flux.
func (f *GOESProtons) Fetch(ctx context.Context) (Observation, error) {
	body, err := f.http.get(ctx, f.path)
	if err != nil {
		return Observation{}, err
	}

	var entries []goesEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return Observation{}, fmt.Errorf("unexpected proton shape: %w", err)
	}

	var current float64
	var seen int
	var last time.Time
	for _, entry := range entries {
		if entry.Energy != protonTenMeV || entry.Flux == nil {
			continue
		}
		seen++
		current = *entry.Flux
		if ts, err := time.Parse(goesTimeLayout, entry.TimeTag); err == nil {
			last = ts
		}
	}

	if seen == 0 {
		return Observation{}, fmt.Errorf("proton feed has no %q samples", protonTenMeV)
	}

	return Observation{
		Values:       map[string]float64{"proton_flux": current},
		Completeness: 1,
		ObservedAt:   last,
	}, nil
}

// goesMagEntry is the GOES magnetometer wire shape.
type goesMagEntry struct {
	TimeTag string   `json:"time_tag"`
	Ht      *float64 `json:"Ht"`
}

// GOESMagnetometer fetches the GOES magnetometer feed and reports the
// total-field standard deviation as a disturbance proxy.
type GOESMagnetometer struct {
	http httpClient
	path string
}

// NewGOESMagnetometer constructs the magnetometer fetcher.
func NewGOESMagnetometer(opts Options) *GOESMagnetometer {
	return &GOESMagnetometer{http: newHTTPClient(opts), path: "/json/goes/primary/magnetometers-1-day.json"}
}

func (f *GOESMagnetometer) Name() string     { return "goes_magnetometer" }
func (f *GOESMagnetometer) Endpoint() string { return f.http.baseURL + f.path }

// Fetch decodes the series and derives the field variation.
func (f *GOESMagnetometer) Fetch(ctx context.Context) (Observation, error) {
	body, err := f.http.get(ctx, f.path)
	if err != nil {
		return Observation{}, err
	}

	var entries []goesMagEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return Observation{}, fmt.Errorf("unexpected magnetometer shape: %w", err)
	}

	totals := make([]float64, 0, len(entries))
	var last time.Time
	for _, entry := range entries {
		if entry.Ht == nil {
			continue
		}
		totals = append(totals, *entry.Ht)
		if ts, err := time.Parse(goesTimeLayout, entry.TimeTag); err == nil {
			last = ts
		}
	}

	if len(totals) < magSampleMinimum {
		return Observation{}, fmt.Errorf("magnetometer feed has too few samples (%d)", len(totals))
	}

	return Observation{
		Values: map[string]float64{
			"magnetometer_total":     totals[len(totals)-1],
			"magnetometer_variation": stddev(totals),
		},
		Completeness: 1,
		ObservedAt:   last,
	}, nil
}

func stddev(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
