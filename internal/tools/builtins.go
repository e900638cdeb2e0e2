package tools

import (
	"context"
	"errors"
)

// RegisterBuiltins adds the analytics tools and, when reports is non-nil,
// the PDF table tool.
func RegisterBuiltins(r *Registry, a *Analytics, reports *ReportWriter) error {
	specs := []Spec{
		{
			Name:        "generate_visualization",
			Description: "Generate a data visualization based on the specified parameters",
			Parameters:  SchemaFor[VisualizationArgs](),
			Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
				in, err := DecodeArgs[VisualizationArgs](args)
				if err != nil {
					return nil, err
				}
				return a.Visualization(ctx, in), nil
			}),
		},
		{
			Name:        "analyze_metrics",
			Description: "Analyze metrics from a data source and provide insights",
			Parameters:  SchemaFor[MetricsArgs](),
			Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
				in, err := DecodeArgs[MetricsArgs](args)
				if err != nil {
					return nil, err
				}
				return a.Metrics(ctx, in), nil
			}),
		},
		{
			Name:        "generate_kpi_dashboard",
			Description: "Generate a KPI dashboard with key performance indicators",
			Parameters:  SchemaFor[KPIArgs](),
			Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
				in, err := DecodeArgs[KPIArgs](args)
				if err != nil {
					return nil, err
				}
				return a.Dashboard(ctx, in), nil
			}),
		},
	}

	if reports != nil {
		specs = append(specs, Spec{
			Name:        "generate_pdf_table",
			Description: "Generate a PDF with a table based on the input dictionary data",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"data": map[string]any{
						"type":        "object",
						"description": "Dictionary containing the data to display in the table",
					},
					"filename": map[string]any{
						"type":        "string",
						"description": "Optional filename for the PDF (default: generated based on title and timestamp)",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "Title for the PDF document",
					},
					"table_headers": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Optional list of column headers (if not provided, will use dict keys)",
					},
				},
				"required": []string{"data"},
			},
			Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
				in, err := DecodeArgs[PDFTableArgs](args)
				if err != nil {
					return nil, err
				}
				return reports.WriteTable(ctx, in)
			}),
		})
	}

	var errs []error
	for _, s := range specs {
		errs = append(errs, r.Register(s))
	}
	return errors.Join(errs...)
}
