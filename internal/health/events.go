package health

// EventKind discriminates tracker event variants.
type EventKind int

const (
	// EventMetricRecorded fires after each recorded fetch outcome.
	EventMetricRecorded EventKind = iota
	// EventAlertRaised fires when a failure-pattern alert passes dedup.
	EventAlertRaised
	// EventHealthChanged fires when an endpoint's classification moves.
	EventHealthChanged
)

// Event is a tagged variant carrying exactly one payload depending on Kind.
type Event struct {
	Kind     EventKind
	Metric   *MetricRecord
	Alert    *Alert
	Endpoint string
	Health   EndpointHealth
}

// EventSink receives tracker events. Sinks run synchronously inside the
// recording call and must not block.
type EventSink func(Event)
