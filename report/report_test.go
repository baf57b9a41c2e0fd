package report

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/models"
	"github.com/xuri/excelize/v2"
)

func strPtr(s string) *string { return &s }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFileName(t *testing.T) {
	key := models.ReportKey{
		Phrase:         "oil/gas",
		Section:        models.SectionBusiness,
		LookbackMonths: 3,
		CreatedAt:      time.Date(2024, 5, 1, 9, 8, 7, 123456789, time.UTC),
	}
	assert.Equal(t, "NewsReport_oil_gas_business_3_20240501_090807123456.xlsx", FileName(key))
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	img := pngBytes(t)

	fetcher := FetcherFunc(func(ctx context.Context, url string) ([]byte, string, error) {
		switch url {
		case "https://img.example.com/a/photo.jpg?w=120":
			return img, "image/png", nil
		case "https://img.example.com/raw.webp":
			return []byte("RIFF....WEBP"), "image/webp", nil
		}
		return nil, "", errors.New("HTTP 404")
	})
	sink := NewExcelSink(config.ReportConfig{OutputDir: dir, DownloadImages: true}, fetcher)

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	records := []models.Record{
		{Title: strPtr("Oil at $80"), Timestamp: &ts, ImageReference: strPtr("https://img.example.com/a/photo.jpg?w=120"), PhraseCount: 1, ContainsMoney: true},
		{Title: strPtr("Broken image"), ImageReference: strPtr("https://img.example.com/missing.jpg")},
		{Title: strPtr("Webp image"), ImageReference: strPtr("https://img.example.com/raw.webp")},
		{},
	}
	key := models.ReportKey{Phrase: "oil", Section: models.SectionAll, LookbackMonths: 1, CreatedAt: ts}

	path, err := sink.Export(context.Background(), key, records)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName(key)), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, columns, rows[0])

	assert.Equal(t, "Oil at $80", rows[1][0])
	assert.NotEmpty(t, rows[1][1])
	assert.Equal(t, "photo.png", rows[1][2])
	assert.Equal(t, "1", rows[1][3])
	assert.Equal(t, "True", rows[1][4])

	assert.Equal(t, "", rows[2][2])
	assert.Equal(t, "False", rows[2][4])

	assert.Equal(t, "raw.webp", rows[3][2])

	assert.Equal(t, "", rows[4][0])
	assert.Equal(t, "0", rows[4][3])

	saved, err := os.ReadFile(filepath.Join(dir, "photo.png"))
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(saved))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, err = os.Stat(filepath.Join(dir, "raw.webp"))
	assert.NoError(t, err)
}

func TestExport_ImagesDisabled(t *testing.T) {
	dir := t.TempDir()
	called := false
	fetcher := FetcherFunc(func(ctx context.Context, url string) ([]byte, string, error) {
		called = true
		return nil, "", nil
	})
	sink := NewExcelSink(config.ReportConfig{OutputDir: dir, DownloadImages: false}, fetcher)

	_, err := sink.Export(context.Background(),
		models.ReportKey{Phrase: "x", Section: models.SectionAll, LookbackMonths: 1, CreatedAt: time.Now()},
		[]models.Record{{Title: strPtr("t"), ImageReference: strPtr("https://img.example.com/a.png")}})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestExport_EmptyCollection(t *testing.T) {
	dir := t.TempDir()
	sink := NewExcelSink(config.ReportConfig{OutputDir: dir}, nil)

	path, err := sink.Export(context.Background(),
		models.ReportKey{Phrase: "none", Section: models.SectionAll, LookbackMonths: 1, CreatedAt: time.Now()}, nil)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExport_UnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	sink := NewExcelSink(config.ReportConfig{OutputDir: filepath.Join(blocker, "sub")}, nil)
	_, err := sink.Export(context.Background(),
		models.ReportKey{Phrase: "x", Section: models.SectionAll, LookbackMonths: 1, CreatedAt: time.Now()}, nil)

	var se *models.ScrapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, models.ErrCodeExport, se.Code)
}
