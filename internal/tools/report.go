package tools

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// PDFTableArgs are the generate_pdf_table parameters.
type PDFTableArgs struct {
	Data         map[string]any `json:"data"`
	Filename     string         `json:"filename,omitempty"`
	Title        string         `json:"title,omitempty"`
	TableHeaders []string       `json:"table_headers,omitempty"`
}

// ReportWriter renders table reports as PDF files under a fixed directory.
type ReportWriter struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// NewReportWriter creates a writer for dir. The directory is created on
// first use.
func NewReportWriter(dir string, now func() time.Time, logger *slog.Logger) *ReportWriter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportWriter{dir: dir, now: now, logger: logger.With("component", "reports")}
}

// Dir returns the output directory.
func (w *ReportWriter) Dir() string { return w.dir }

// WriteTable renders args.Data as a table and returns the file path.
func (w *ReportWriter) WriteTable(ctx context.Context, args PDFTableArgs) (string, error) {
	if args.Data == nil {
		return "", fmt.Errorf("data must be an object")
	}
	if args.Title == "" {
		args.Title = "Report"
	}

	now := w.now()
	name := reportFilename(args.Filename, args.Title, now)

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	path := filepath.Join(w.dir, name)

	header, rows := shapeTable(args.Data, args.TableHeaders)
	ref := uuid.Must(uuid.NewV7()).String()

	qr, err := qrcode.Encode("sanjeevni-report:"+ref, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode report reference: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	pdf := renderTable(args.Title, now, header, rows, ref, qr)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}

	w.logger.Info("report written", "path", path, "rows", len(rows), "ref", ref)
	return path, nil
}

// reportFilename returns a safe base name ending in .pdf. Directory parts
// in the requested name are dropped.
func reportFilename(requested, title string, now time.Time) string {
	name := filepath.Base(strings.TrimSpace(requested))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("%s_%s", safeName(title), now.Format("20060102_150405"))
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, s)
}

// shapeTable turns report data into a header and rows:
//   - a flat object becomes Key/Value rows
//   - {"data": [{...}, ...]} becomes one column per key of the first row
//     (sorted) unless headers are given
//   - anything else is flattened into dotted keys, with lists summarized
func shapeTable(data map[string]any, headers []string) ([]string, [][]string) {
	if isFlat(data) {
		if len(headers) == 0 {
			headers = []string{"Key", "Value"}
		}
		rows := make([][]string, 0, len(data))
		for _, k := range sortedKeys(data) {
			rows = append(rows, []string{k, cellText(data[k])})
		}
		return headers, rows
	}

	if items, ok := objectList(data["data"]); ok {
		if len(headers) == 0 {
			headers = sortedKeys(items[0])
		}
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			row := make([]string, len(headers))
			for i, h := range headers {
				row[i] = cellText(item[h])
			}
			rows = append(rows, row)
		}
		return headers, rows
	}

	if len(headers) == 0 {
		headers = []string{"Key", "Value"}
	}
	var rows [][]string
	flatten(data, "", &rows)
	return headers, rows
}

func isFlat(data map[string]any) bool {
	for _, v := range data {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func objectList(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

func flatten(data map[string]any, prefix string, rows *[][]string) {
	for _, k := range sortedKeys(data) {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := data[k].(type) {
		case map[string]any:
			flatten(v, key, rows)
		case []any:
			*rows = append(*rows, []string{key, fmt.Sprintf("List with %d items", len(v))})
		default:
			*rows = append(*rows, []string{key, cellText(v)})
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

func renderTable(title string, now time.Time, header []string, rows [][]string, ref string, qr []byte) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.SetCreator("Sanjeevni", true)

	qrOpts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("report-ref", qrOpts, bytes.NewReader(qr))

	pageW, pageH := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	pdf.SetFooterFunc(func() {
		pdf.ImageOptions("report-ref", left, pageH-28, 18, 18, false, qrOpts, 0, "")
		pdf.SetY(-14)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(96, 96, 96)
		pdf.CellFormat(0, 6, fmt.Sprintf("Ref %s  |  Page %d", ref, pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, tr(title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Generated on: "+now.Format("2006-01-02 15:04:05"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	cols := len(header)
	if cols == 0 {
		return pdf
	}
	colW := (pageW - left - right) / float64(cols)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetFillColor(128, 128, 128)
	pdf.SetTextColor(245, 245, 245)
	for _, h := range header {
		pdf.CellFormat(colW, 9, tr(fitText(pdf, h, colW)), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetFillColor(245, 245, 220)
	pdf.SetTextColor(0, 0, 0)
	for _, row := range rows {
		for i, cell := range row {
			align := "C"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(colW, 7, tr(fitText(pdf, cell, colW)), "1", 0, align, true, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf
}

// fitText truncates s with "..." so it fits a cell of width w.
func fitText(pdf *fpdf.Fpdf, s string, w float64) string {
	limit := w - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > limit {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
