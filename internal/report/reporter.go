package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// File names inside a report directory
const (
	ExcelFile           = "backtest_results.xlsx"
	ChartFile           = "nav_chart.html"
	ReadmeFile          = "README.md"
	NAVParquetFile      = "nav.parquet"
	HoldingsParquetFile = "holdings.parquet"
	JSONFile            = "result.json"
)

// Artifacts lists the files written for one run
type Artifacts struct {
	Dir             string `json:"dir"`
	Excel           string `json:"excel"`
	Chart           string `json:"chart"`
	Readme          string `json:"readme"`
	NAVParquet      string `json:"nav_parquet"`
	HoldingsParquet string `json:"holdings_parquet"`
	JSON            string `json:"json"`
}

// Reporter writes report directories under a root
// ⭐ SSOT: 리포트 파일 생성은 여기서만
type Reporter struct {
	root   string
	now    func() time.Time
	logger *logger.Logger
}

// Option customizes a Reporter
type Option func(*Reporter)

// WithClock fixes the clock used for directory names
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// New creates a reporter writing under root
func New(root string, log *logger.Logger, opts ...Option) *Reporter {
	if log == nil {
		log = logger.Nop()
	}
	r := &Reporter{root: root, now: time.Now, logger: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DirName returns <strategy>_<MMDD_HHMM>
func (r *Reporter) DirName(strategy string) string {
	if strategy == "" {
		strategy = "backtest"
	}
	return fmt.Sprintf("%s_%s", strategy, r.now().Format("0102_1504"))
}

// Write renders every artifact of result into a fresh directory
func (r *Reporter) Write(ctx context.Context, runID string, result *backtest.Result) (*Artifacts, error) {
	if result == nil {
		return nil, fmt.Errorf("write report: nil result")
	}

	dir := filepath.Join(r.root, r.DirName(result.Config.Strategy))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	doc := NewDocument(runID, result)
	art := &Artifacts{
		Dir:             dir,
		Excel:           filepath.Join(dir, ExcelFile),
		Chart:           filepath.Join(dir, ChartFile),
		Readme:          filepath.Join(dir, ReadmeFile),
		NAVParquet:      filepath.Join(dir, NAVParquetFile),
		HoldingsParquet: filepath.Join(dir, HoldingsParquetFile),
		JSON:            filepath.Join(dir, JSONFile),
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"excel", func() error { return WriteExcel(art.Excel, doc) }},
		{"chart", func() error { return WriteChart(art.Chart, doc) }},
		{"readme", func() error { return WriteReadme(art.Readme, doc) }},
		{"nav parquet", func() error { return WriteNAVParquet(art.NAVParquet, doc.NAV) }},
		{"holdings parquet", func() error { return WriteHoldingsParquet(art.HoldingsParquet, doc.Periods) }},
		{"json", func() error { return WriteJSON(art.JSON, doc) }},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step.fn(); err != nil {
			return nil, fmt.Errorf("write %s: %w", step.name, err)
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"dir":      dir,
		"strategy": doc.Strategy,
		"periods":  len(doc.Periods),
	}).Info("Report written")

	return art, nil
}

// WriteJSON writes the document as indented JSON
func WriteJSON(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON loads a document written by WriteJSON
func ReadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
