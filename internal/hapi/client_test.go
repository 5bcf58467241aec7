package hapi

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newHAPIServer(t *testing.T, info string, data string, wantParams string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(info))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		if wantParams != "" && r.URL.Query().Get("parameters") != wantParams {
			t.Errorf("expected parameters=%s, got %s", wantParams, r.URL.Query().Get("parameters"))
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(data))
	})
	return httptest.NewServer(mux)
}

const infoTwoDoubles = `{
	"HAPI": "3.0",
	"parameters": [
		{"name": "Time", "type": "isotime", "fill": null},
		{"name": "kp", "type": "double", "fill": "-1"},
		{"name": "dst", "type": "double", "fill": "99999"}
	]
}`

func TestFetchDataReordersRequestedParameters(t *testing.T) {
	data := "2024-01-01T00:00:00.000Z,3.0,-45.0\n"
	// Requested in reverse; the request must follow the server's declared
	// order or columns would misalign.
	srv := newHAPIServer(t, infoTwoDoubles, data, "kp,dst")
	defer srv.Close()

	client := NewClient(Options{}, testLogger())
	ds, err := client.FetchData(context.Background(), SourceConfig{
		Server:     srv.URL,
		Dataset:    "test",
		Parameters: []string{"dst", "kp"},
	})
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}

	if len(ds.Fields) != 2 || ds.Fields[0] != "kp" || ds.Fields[1] != "dst" {
		t.Fatalf("fields should be in server order, got %v", ds.Fields)
	}
	if len(ds.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(ds.Rows))
	}
	values := ds.LatestNumbers()
	if values["kp"] != 3.0 || values["dst"] != -45.0 {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestFetchDataFillBecomesMissing(t *testing.T) {
	data := "2024-01-01T00:00:00.000Z,3.0,-45.0\n" +
		"2024-01-01T01:00:00.000Z,-1,99999\n"
	srv := newHAPIServer(t, infoTwoDoubles, data, "")
	defer srv.Close()

	client := NewClient(Options{}, testLogger())
	ds, err := client.FetchData(context.Background(), SourceConfig{
		Server:     srv.URL,
		Dataset:    "test",
		Parameters: []string{"kp", "dst"},
	})
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}

	if len(ds.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(ds.Rows))
	}

	latest, _ := ds.Latest()
	for _, name := range []string{"kp", "dst"} {
		v := latest.Values[name]
		if v.Kind != KindMissing {
			t.Fatalf("%s fill value should decode as missing, got %#v", name, v)
		}
		if !math.IsNaN(v.Float()) {
			t.Fatalf("%s missing value should float to NaN", name)
		}
	}

	// 2 present cells of 4 total.
	if ds.Completeness != 0.5 {
		t.Fatalf("expected completeness 0.5, got %g", ds.Completeness)
	}
	if len(ds.ValidationErrors) != 0 {
		t.Fatalf("fill values are not validation errors: %v", ds.ValidationErrors)
	}
}

func TestFetchDataBadCellIsValidationError(t *testing.T) {
	data := "2024-01-01T00:00:00.000Z,abc,-45.0\n"
	srv := newHAPIServer(t, infoTwoDoubles, data, "")
	defer srv.Close()

	client := NewClient(Options{}, testLogger())
	ds, err := client.FetchData(context.Background(), SourceConfig{
		Server:     srv.URL,
		Dataset:    "test",
		Parameters: []string{"kp", "dst"},
	})
	if err != nil {
		t.Fatalf("a bad cell must not abort the parse: %v", err)
	}

	if len(ds.ValidationErrors) != 1 {
		t.Fatalf("expected 1 validation error, got %v", ds.ValidationErrors)
	}
	latest, _ := ds.Latest()
	if latest.Values["kp"].Kind != KindMissing {
		t.Fatal("uncoercible cell should decode as missing")
	}
	if latest.Values["dst"].Float() != -45.0 {
		t.Fatal("remaining cells should still decode")
	}
}

func TestFetchDataExpandsMultiDimensionalParameters(t *testing.T) {
	info := `{
		"HAPI": "3.0",
		"parameters": [
			{"name": "Time", "type": "isotime", "fill": null},
			{"name": "b_gsm", "type": "double", "size": [3], "fill": null}
		]
	}`
	data := "2024-01-01T00:00:00.000Z,1.0,2.0,3.0\n"
	srv := newHAPIServer(t, info, data, "b_gsm")
	defer srv.Close()

	client := NewClient(Options{}, testLogger())
	ds, err := client.FetchData(context.Background(), SourceConfig{
		Server:     srv.URL,
		Dataset:    "test",
		Parameters: []string{"b_gsm"},
	})
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}

	want := []string{"b_gsm_0", "b_gsm_1", "b_gsm_2"}
	if len(ds.Fields) != len(want) {
		t.Fatalf("expected fields %v, got %v", want, ds.Fields)
	}
	for i, name := range want {
		if ds.Fields[i] != name {
			t.Fatalf("expected fields %v, got %v", want, ds.Fields)
		}
	}
	values := ds.LatestNumbers()
	if values["b_gsm_0"] != 1.0 || values["b_gsm_1"] != 2.0 || values["b_gsm_2"] != 3.0 {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestFetchWithFallbackUsesSecondary(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	data := "2024-01-01T00:00:00.000Z,3.0,-45.0\n"
	working := newHAPIServer(t, infoTwoDoubles, data, "")
	defer working.Close()

	client := NewClient(Options{}, testLogger())
	configs := []SourceConfig{
		{Server: broken.URL, Dataset: "primary", Parameters: []string{"kp", "dst"}},
		{Server: working.URL, Dataset: "secondary", Parameters: []string{"kp", "dst"}},
	}

	ds, attempts, err := client.FetchWithFallback(context.Background(), configs)
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if !ds.Fallback {
		t.Fatal("dataset from a non-primary source should be marked as fallback")
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Err == nil {
		t.Fatal("primary attempt should record its error")
	}
	if attempts[1].Err != nil || attempts[1].Rows != 1 {
		t.Fatalf("secondary attempt should record success: %+v", attempts[1])
	}
}

func TestFetchWithFallbackPrimarySuccessIsNotFallback(t *testing.T) {
	data := "2024-01-01T00:00:00.000Z,3.0,-45.0\n"
	srv := newHAPIServer(t, infoTwoDoubles, data, "")
	defer srv.Close()

	client := NewClient(Options{}, testLogger())
	ds, attempts, err := client.FetchWithFallback(context.Background(), []SourceConfig{
		{Server: srv.URL, Dataset: "primary", Parameters: []string{"kp", "dst"}},
	})
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if ds.Fallback {
		t.Fatal("primary source must not be marked as fallback")
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
}

func TestFetchWithFallbackAllFail(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	client := NewClient(Options{}, testLogger())
	configs := []SourceConfig{
		{Server: broken.URL, Dataset: "a", Parameters: []string{"kp"}},
		{Server: broken.URL, Dataset: "b", Parameters: []string{"kp"}},
	}

	_, attempts, err := client.FetchWithFallback(context.Background(), configs)
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
}

func TestFetchWithFallbackEmptyDatasetAdvancesChain(t *testing.T) {
	empty := newHAPIServer(t, infoTwoDoubles, "", "")
	defer empty.Close()

	data := "2024-01-01T00:00:00.000Z,3.0,-45.0\n"
	working := newHAPIServer(t, infoTwoDoubles, data, "")
	defer working.Close()

	client := NewClient(Options{}, testLogger())
	ds, _, err := client.FetchWithFallback(context.Background(), []SourceConfig{
		{Server: empty.URL, Dataset: "empty", Parameters: []string{"kp", "dst"}},
		{Server: working.URL, Dataset: "full", Parameters: []string{"kp", "dst"}},
	})
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if !ds.Fallback {
		t.Fatal("empty primary result should advance to the fallback source")
	}
}

func TestParameterWidth(t *testing.T) {
	if w := (Parameter{Name: "x"}).Width(); w != 1 {
		t.Fatalf("scalar width should be 1, got %d", w)
	}
	if w := (Parameter{Name: "x", Size: []int{3}}).Width(); w != 3 {
		t.Fatalf("vector width should be 3, got %d", w)
	}
	if w := (Parameter{Name: "x", Size: []int{2, 4}}).Width(); w != 8 {
		t.Fatalf("matrix width should be 8, got %d", w)
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	cases := []string{
		"2024-01-01T00:00:00.000Z",
		"2024-01-01T00:00:00Z",
		"2024-01-01T00:00Z",
	}
	for _, c := range cases {
		if _, ok := parseTimestamp(c); !ok {
			t.Fatalf("timestamp %q should parse", c)
		}
	}
	if _, ok := parseTimestamp("not-a-time"); ok {
		t.Fatal("garbage timestamp should not parse")
	}
}

func TestParseTimestampOrdinalDates(t *testing.T) {
	ts, ok := parseTimestamp("2024-010T06:00:00.000Z")
	if !ok {
		t.Fatal("ordinal timestamp should parse")
	}
	if ts.Month() != time.January || ts.Day() != 10 {
		t.Fatalf("day-of-year 010 is January 10th, got %v", ts)
	}

	ts, ok = parseTimestamp("2024-123T06:00:00.000Z")
	if !ok {
		t.Fatal("three-digit day-of-year should parse")
	}
	if ts.YearDay() != 123 {
		t.Fatalf("expected day-of-year 123, got %d (%v)", ts.YearDay(), ts)
	}
}

func TestSourceConfigEndpoint(t *testing.T) {
	cfg := SourceConfig{Server: "https://example.org/hapi", Dataset: "OMNI2_H0_MRG1HR"}
	if cfg.Endpoint() != "https://example.org/hapi#OMNI2_H0_MRG1HR" {
		t.Fatalf("unexpected endpoint identity: %s", cfg.Endpoint())
	}
}
