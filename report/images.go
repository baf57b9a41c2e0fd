package report

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/use-agent/newswalk/models"
)

// saveImage downloads the record's image into the output directory and
// returns the stored file name, or "" on any failure. Decodable images are
// re-encoded as <stem>.png; anything else is stored as fetched under the
// record's image local name.
func (s *ExcelSink) saveImage(ctx context.Context, rec models.Record) string {
	name, ok := rec.ImageLocalName()
	if !ok {
		return ""
	}
	ref := *rec.ImageReference

	fetchCtx, cancel := context.WithTimeout(ctx, s.imageTimeout)
	defer cancel()

	body, _, err := s.fetcher.Fetch(fetchCtx, ref)
	if err != nil {
		slog.Warn("image download failed", "url", ref, "error", err)
		return ""
	}

	out, data := name, body
	if img, _, err := image.Decode(bytes.NewReader(body)); err == nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			out = strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
			data = buf.Bytes()
		}
	}

	if err := os.WriteFile(filepath.Join(s.dir, out), data, 0o644); err != nil {
		slog.Warn("image save failed", "file", out, "error", err)
		return ""
	}
	slog.Debug("image saved", "file", out)
	return out
}
