package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "sanjeevni"

// Metrics holds the agent's metric instruments.
type Metrics struct {
	Handles        metric.Int64Counter
	ToolCalls      metric.Int64Counter
	DepthExhausted metric.Int64Counter
	ModelFailures  metric.Int64Counter
	Tokens         metric.Int64Counter
	HandleDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Handles, err = meter.Int64Counter("sanjeevni.messages.handled",
		metric.WithDescription("Number of user messages handled"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("sanjeevni.toolcalls",
		metric.WithDescription("Number of tool calls dispatched"))
	if err != nil {
		return nil, err
	}

	m.DepthExhausted, err = meter.Int64Counter("sanjeevni.depth_exhausted",
		metric.WithDescription("Number of turns stopped at the tool depth limit"))
	if err != nil {
		return nil, err
	}

	m.ModelFailures, err = meter.Int64Counter("sanjeevni.model.failures",
		metric.WithDescription("Number of failed model calls"))
	if err != nil {
		return nil, err
	}

	m.Tokens, err = meter.Int64Counter("sanjeevni.tokens",
		metric.WithDescription("Tokens consumed"), metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.HandleDuration, err = meter.Float64Histogram("sanjeevni.message.duration_seconds",
		metric.WithDescription("Time to answer a message in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
