package tools

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Analytics produces sample analytics data for the visualization, metrics
// and KPI tools. The random source and clock are injectable so tests get
// deterministic output.
type Analytics struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewAnalytics creates an Analytics. A nil rng is seeded from the clock and
// a nil now uses time.Now.
func NewAnalytics(rng *rand.Rand, now func() time.Time) *Analytics {
	if now == nil {
		now = time.Now
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(now().UnixNano()))
	}
	return &Analytics{rng: rng, now: now}
}

// VisualizationArgs are the generate_visualization parameters.
type VisualizationArgs struct {
	ChartType  string   `json:"chart_type" jsonschema:"required,enum=bar,enum=line,enum=pie,enum=scatter,enum=area,enum=radar,description=Type of chart to generate"`
	DataSource string   `json:"data_source" jsonschema:"required,enum=customer,enum=product,enum=pos,enum=drivethru,description=Source of data for the visualization"`
	TimePeriod string   `json:"time_period,omitempty" jsonschema:"enum=last_7_days,enum=last_30_days,enum=last_12_months,enum=year_to_date,description=Time period for the data"`
	Metrics    []string `json:"metrics,omitempty" jsonschema:"description=List of metrics to include in the visualization"`
}

// MetricsArgs are the analyze_metrics parameters.
type MetricsArgs struct {
	DataSource       string   `json:"data_source" jsonschema:"required,enum=customer,enum=product,enum=pos,enum=drivethru,description=Source of data for analysis"`
	Metrics          []string `json:"metrics" jsonschema:"required,description=List of metrics to analyze"`
	TimePeriod       string   `json:"time_period,omitempty" jsonschema:"enum=last_7_days,enum=last_30_days,enum=last_12_months,enum=year_to_date,description=Time period for the data"`
	ComparisonPeriod string   `json:"comparison_period,omitempty" jsonschema:"enum=previous_period,enum=same_period_last_year,enum=none,description=Period to compare against"`
}

// KPIArgs are the generate_kpi_dashboard parameters. None are required.
type KPIArgs struct {
	KPIs       []string `json:"kpis,omitempty" jsonschema:"description=List of KPIs to include in the dashboard"`
	TimePeriod string   `json:"time_period,omitempty" jsonschema:"enum=last_7_days,enum=last_30_days,enum=last_12_months,enum=year_to_date,description=Time period for the KPI data"`
}

const defaultPeriod = "last_30_days"

var (
	defaultMetrics = []string{"sales", "transactions"}
	defaultKPIs    = []string{"sales", "transactions", "average_order_value", "customer_satisfaction"}
)

func (a *Analytics) uniform(low, high float64) float64 {
	return low + a.rng.Float64()*(high-low)
}

func (a *Analytics) intn(low, high int) int {
	return low + a.rng.Intn(high-low+1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Visualization returns chart data points for the requested metrics.
func (a *Analytics) Visualization(_ context.Context, args VisualizationArgs) map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	if args.TimePeriod == "" {
		args.TimePeriod = defaultPeriod
	}
	if len(args.Metrics) == 0 {
		args.Metrics = defaultMetrics
	}

	now := a.now()
	points, layout, step := 10, "2006-01-02", 24*time.Hour
	start := now.AddDate(0, 0, -10)
	switch args.TimePeriod {
	case "last_7_days":
		points, start = 7, now.AddDate(0, 0, -7)
	case "last_30_days":
		points, start = 30, now.AddDate(0, 0, -30)
	case "last_12_months":
		points, layout, step, start = 12, "2006-01", 30*24*time.Hour, now.AddDate(-1, 0, 0)
	}

	data := make([]map[string]any, 0, points)
	at := start
	for range points {
		p := map[string]any{"date": at.Format(layout)}
		for _, m := range args.Metrics {
			switch m {
			case "sales":
				p[m] = round(a.uniform(1000, 5000), 2)
			case "transactions":
				p[m] = a.intn(50, 200)
			case "average_order_value":
				p[m] = round(a.uniform(15, 30), 2)
			case "customer_satisfaction":
				p[m] = round(a.uniform(3.5, 5.0), 1)
			default:
				p[m] = a.intn(10, 100)
			}
		}
		data = append(data, p)
		at = at.Add(step)
	}

	return map[string]any{
		"chart_type":        args.ChartType,
		"data_source":       args.DataSource,
		"time_period":       args.TimePeriod,
		"metrics":           args.Metrics,
		"data":              data,
		"generated_at":      now.Format(time.RFC3339),
		"visualization_url": fmt.Sprintf("https://example.com/visualizations/%s_%s_%s", args.ChartType, args.DataSource, args.TimePeriod),
	}
}

// Metrics returns current/previous values, trend and insights per metric.
func (a *Analytics) Metrics(_ context.Context, args MetricsArgs) map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	if args.TimePeriod == "" {
		args.TimePeriod = defaultPeriod
	}
	if len(args.Metrics) == 0 {
		args.Metrics = defaultMetrics
	}

	metrics := map[string]any{}
	var insights []string
	for _, m := range args.Metrics {
		var current, change float64
		places := 0
		switch m {
		case "sales":
			current, change, places = round(a.uniform(50000, 150000), 2), a.uniform(-15, 25), 2
		case "transactions":
			current, change = float64(a.intn(2000, 5000)), a.uniform(-10, 20)
		case "average_order_value":
			current, change, places = round(a.uniform(15, 30), 2), a.uniform(-5, 15), 2
		case "customer_satisfaction":
			current, change, places = round(a.uniform(3.5, 4.9), 1), a.uniform(-5, 10), 1
		default:
			current, change = float64(a.intn(100, 1000)), a.uniform(-20, 30)
		}
		previous := round(current/(1+change/100), places)

		trend := "down"
		if change > 0 {
			trend = "up"
		}
		metrics[m] = map[string]any{
			"current_value":     current,
			"previous_value":    previous,
			"change_percentage": round(change, 2),
			"trend":             trend,
		}
		insights = append(insights, metricInsight(m, change))
	}

	switch args.DataSource {
	case "drivethru":
		insights = append(insights, "Drive-thru service times have improved during peak hours")
	case "pos":
		insights = append(insights, "POS transactions show increased use of digital payment methods")
	case "customer":
		insights = append(insights, "Customer retention has improved for loyalty program members")
	}

	var comparison any
	if args.ComparisonPeriod != "" {
		comparison = args.ComparisonPeriod
	}
	return map[string]any{
		"data_source":       args.DataSource,
		"time_period":       args.TimePeriod,
		"comparison_period": comparison,
		"metrics":           metrics,
		"insights":          insights,
		"generated_at":      a.now().Format(time.RFC3339),
	}
}

func metricInsight(metric string, change float64) string {
	switch {
	case change > 15:
		return fmt.Sprintf("Significant increase in %s by %.2f%%", metric, change)
	case change < -15:
		return fmt.Sprintf("Concerning decrease in %s by %.2f%%", metric, -change)
	case change > 5:
		return fmt.Sprintf("Moderate growth in %s by %.2f%%", metric, change)
	case change < -5:
		return fmt.Sprintf("Slight decline in %s by %.2f%%", metric, -change)
	}
	return titleWord(metric) + " remained relatively stable"
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Dashboard returns KPI values against targets.
func (a *Analytics) Dashboard(_ context.Context, args KPIArgs) map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	if args.TimePeriod == "" {
		args.TimePeriod = defaultPeriod
	}
	if len(args.KPIs) == 0 {
		args.KPIs = defaultKPIs
	}

	kpis := map[string]any{}
	for _, k := range args.KPIs {
		var current float64
		places, unit := 0, "count"
		switch k {
		case "sales":
			current, places, unit = round(a.uniform(100000, 300000), 2), 2, "$"
		case "transactions":
			current = float64(a.intn(5000, 10000))
		case "average_order_value":
			current, places, unit = round(a.uniform(15, 35), 2), 2, "$"
		case "customer_satisfaction":
			current, places, unit = round(a.uniform(3.5, 4.9), 1), 1, "rating"
		default:
			current = float64(a.intn(100, 1000))
		}
		target := round(current*a.uniform(0.9, 1.2), places)
		if k == "customer_satisfaction" {
			target = round(math.Min(5.0, current*a.uniform(0.9, 1.1)), places)
		}
		previous := round(current*a.uniform(0.8, 1.1), places)

		performance := current / target * 100
		change := (current - previous) / previous * 100

		status := "near_target"
		switch {
		case performance >= 95:
			status = "on_target"
		case performance < 80:
			status = "below_target"
		}

		kpis[k] = map[string]any{
			"name":                   kpiName(k),
			"current_value":          current,
			"target_value":           target,
			"previous_value":         previous,
			"unit":                   unit,
			"performance_percentage": round(performance, 2),
			"change_percentage":      round(change, 2),
			"status":                 status,
		}
	}

	return map[string]any{
		"title":        "KPI Dashboard - " + args.TimePeriod,
		"time_period":  args.TimePeriod,
		"generated_at": a.now().Format(time.RFC3339),
		"kpis":         kpis,
		"summary":      "Overall performance is trending positive with improvements in key metrics.",
	}
}

func kpiName(k string) string {
	words := strings.Split(k, "_")
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}
