// Package report persists a finished walk as an xlsx workbook plus the
// images its records reference.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/models"
	"github.com/xuri/excelize/v2"
)

// Sink accepts a finalized record collection.
type Sink interface {
	// Export persists records under key and returns the report path.
	Export(ctx context.Context, key models.ReportKey, records []models.Record) (string, error)
}

// ImageFetcher downloads one image. engine.HTTPEngine satisfies it.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// FetcherFunc adapts a function to ImageFetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, string, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	return f(ctx, url)
}

const sheetName = "Sheet1"

var columns = []string{"title", "date", "picture_filename", "search_phrase_count", "contains_money"}

// ExcelSink writes one workbook per export into a directory.
type ExcelSink struct {
	dir          string
	fetcher      ImageFetcher
	imageTimeout time.Duration
}

// NewExcelSink creates a sink. A nil fetcher, or DownloadImages=false,
// leaves every picture_filename empty.
func NewExcelSink(cfg config.ReportConfig, fetcher ImageFetcher) *ExcelSink {
	dir := cfg.OutputDir
	if dir == "" {
		dir = "output"
	}
	if !cfg.DownloadImages {
		fetcher = nil
	}
	timeout := cfg.ImageTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ExcelSink{dir: dir, fetcher: fetcher, imageTimeout: timeout}
}

// Export writes the workbook. Image downloads are best-effort; only
// directory and workbook I/O failures are returned.
func (s *ExcelSink) Export(ctx context.Context, key models.ReportKey, records []models.Record) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", models.NewScrapeError(models.ErrCodeExport, "create output directory", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return "", models.NewScrapeError(models.ErrCodeExport, "write header", err)
		}
	}

	for i, rec := range records {
		picture := ""
		if rec.ImageReference != nil && s.fetcher != nil {
			picture = s.saveImage(ctx, rec)
		}

		var date any
		if rec.Timestamp != nil {
			date = *rec.Timestamp
		}
		row := []any{
			rec.TitleOrEmpty(),
			date,
			picture,
			rec.PhraseCount,
			pyBool(rec.ContainsMoney),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return "", models.NewScrapeError(models.ErrCodeExport, fmt.Sprintf("write row %d", i+1), err)
		}
	}

	path := filepath.Join(s.dir, FileName(key))
	if err := f.SaveAs(path); err != nil {
		return "", models.NewScrapeError(models.ErrCodeExport, "save workbook", err)
	}

	slog.Info("report saved", "path", path, "rows", len(records))
	return path, nil
}

// FileName returns NewsReport_<phrase>_<section>_<lookback>_<stamp>.xlsx,
// where stamp is the creation time as YYYYMMDD_HHMMSS plus microseconds.
func FileName(key models.ReportKey) string {
	ts := key.CreatedAt
	stamp := fmt.Sprintf("%s%06d", ts.Format("20060102_150405"), ts.Nanosecond()/1000)
	return fmt.Sprintf("NewsReport_%s_%s_%d_%s.xlsx",
		sanitize(key.Phrase), key.Section, key.LookbackMonths, stamp)
}

// sanitize keeps the phrase usable as a single path element.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, s)
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
