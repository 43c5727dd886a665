package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/louisbranch/matchwarden"

// Counter is a monotonic counter keyed by string attributes. A nil Counter is a no-op.
type Counter struct {
	name       string
	instrument metric.Int64Counter

	mu     sync.Mutex
	totals map[string]int64
}

// NewCounter registers name on the global meter provider.
func NewCounter(name, description string) (*Counter, error) {
	return NewCounterWithMeter(otel.Meter(meterName), name, description)
}

// NewCounterWithMeter registers name on meter.
func NewCounterWithMeter(meter metric.Meter, name, description string) (*Counter, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("counter name is required")
	}
	instrument, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", name, err)
	}
	return &Counter{name: name, instrument: instrument, totals: map[string]int64{}}, nil
}

// MustCounter is NewCounter for package-level wiring where failure is a programming error.
func MustCounter(name, description string) *Counter {
	counter, err := NewCounter(name, description)
	if err != nil {
		panic(err)
	}
	return counter
}

// Inc adds one for the given key/value attribute pairs.
func (c *Counter) Inc(ctx context.Context, pairs ...string) {
	if c == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		attrs = append(attrs, attribute.String(pairs[i], pairs[i+1]))
	}
	c.instrument.Add(ctx, 1, metric.WithAttributes(attrs...))

	c.mu.Lock()
	c.totals[seriesKey(attrs)]++
	c.mu.Unlock()
}

// Value returns the in-process total for the given attribute pairs.
func (c *Counter) Value(pairs ...string) int64 {
	if c == nil {
		return 0
	}
	attrs := make([]attribute.KeyValue, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		attrs = append(attrs, attribute.String(pairs[i], pairs[i+1]))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[seriesKey(attrs)]
}

// Snapshot copies every series total, keyed by "k=v,k=v".
func (c *Counter) Snapshot() map[string]int64 {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.totals))
	for key, value := range c.totals {
		out[key] = value
	}
	return out
}

// Name returns the registered counter name.
func (c *Counter) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

func seriesKey(attrs []attribute.KeyValue) string {
	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		parts = append(parts, string(attr.Key)+"="+attr.Value.AsString())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
