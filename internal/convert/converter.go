// Package convert turns one downloaded image into a single-page PDF.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	_ "image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/JakeFAU/article-binder/internal/binder"
	"github.com/JakeFAU/article-binder/internal/metrics"
	"github.com/JakeFAU/article-binder/internal/pdf"
)

// Formats pdfcpu embeds directly. Everything else is re-encoded as PNG first.
var passthrough = map[string]bool{
	"jpeg": true,
	"png":  true,
	"tiff": true,
}

// Converter implements the page conversion stage.
type Converter struct {
	logger *zap.Logger
}

// New builds a Converter.
func New(logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{logger: logger.Named("convert")}
}

// OutputPath is where the page document for rasterPath lives: same basename,
// PDF extension.
func OutputPath(rasterPath string) string {
	return strings.TrimSuffix(rasterPath, filepath.Ext(rasterPath)) + "." + binder.PageExt
}

// Convert writes the page document for rasterPath. Non-images and rasters
// whose page already exists are no-ops reported through the outcome. The
// raster is removed once its page exists; a failed removal is only logged.
func (c *Converter) Convert(ctx context.Context, rasterPath string) (binder.PageDocument, binder.ConvertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return binder.PageDocument{}, binder.OutcomeNotImage, fmt.Errorf("convert canceled: %w", err)
	}
	out := OutputPath(rasterPath)
	ordinal, _ := binder.ParseOrdinal(rasterPath)
	doc := binder.PageDocument{Ordinal: ordinal, LocalPath: out}
	logger := c.logger.With(zap.String("path", rasterPath))

	// #nosec G304 -- rasterPath comes from the job's own destination directory.
	data, err := os.ReadFile(rasterPath)
	if err != nil {
		return binder.PageDocument{}, binder.OutcomeNotImage, fmt.Errorf("read %s: %w", rasterPath, err)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		logger.Debug("not a decodable image, skipping", zap.Error(err))
		metrics.ObserveConversion(binder.OutcomeNotImage.String())
		return binder.PageDocument{}, binder.OutcomeNotImage, nil
	}

	exists, err := fileExists(out)
	if err != nil {
		return binder.PageDocument{}, binder.OutcomeNotImage, err
	}
	if exists {
		logger.Debug("page already converted", zap.String("page", out))
		c.removeRaster(rasterPath)
		metrics.ObserveConversion(binder.OutcomeExisting.String())
		return doc, binder.OutcomeExisting, nil
	}

	src, err := embeddable(data, format)
	if err != nil {
		return binder.PageDocument{}, binder.OutcomeNotImage, fmt.Errorf("prepare %s: %w", rasterPath, err)
	}
	if err := c.writePage(src, out); err != nil {
		return binder.PageDocument{}, binder.OutcomeNotImage, err
	}

	logger.Debug("page converted", zap.String("page", out), zap.String("format", format))
	c.removeRaster(rasterPath)
	metrics.ObserveConversion(binder.OutcomeConverted.String())
	return doc, binder.OutcomeConverted, nil
}

// writePage builds the page in a temp file next to out and renames it into
// place. pdfcpu appends to an existing output, so out is never opened directly.
// pdfcpu mutates its configuration, so every page gets a fresh one.
func (c *Converter) writePage(src io.Reader, out string) error {
	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp page: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := api.ImportImages(nil, tmp, []io.Reader{src}, nil, pdf.Configuration()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("import image into %s: %w", out, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp page: %w", err)
	}
	if err := os.Rename(tmpName, out); err != nil {
		return fmt.Errorf("commit page %s: %w", out, err)
	}
	committed = true
	return nil
}

func (c *Converter) removeRaster(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("failed to remove source image", zap.String("path", path), zap.Error(err))
	}
}

func embeddable(data []byte, format string) (io.Reader, error) {
	if passthrough[format] {
		return bytes.NewReader(data), nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return &buf, nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}
