package convert

import (
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-binder/internal/binder"
	"github.com/JakeFAU/article-binder/internal/pdf"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func writeGIF(t *testing.T, path string) {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.White, color.Black})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gif.Encode(f, img, nil))
	require.NoError(t, f.Close())
}

func TestOutputPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, filepath.Join("a", "3.pdf"), OutputPath(filepath.Join("a", "3.jpeg")))
	require.Equal(t, "7.pdf", OutputPath("7"))
}

func TestConvertPNG(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raster := filepath.Join(dir, "4.png")
	writePNG(t, raster)

	doc, outcome, err := New(nil).Convert(context.Background(), raster)
	require.NoError(t, err)
	require.Equal(t, binder.OutcomeConverted, outcome)
	require.Equal(t, 4, doc.Ordinal)
	require.Equal(t, filepath.Join(dir, "4.pdf"), doc.LocalPath)
	require.NoFileExists(t, raster)

	pages, err := pdf.PageCount(doc.LocalPath)
	require.NoError(t, err)
	require.Equal(t, 1, pages)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestConvertConcurrentSharedConverter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	const n = 8
	for i := 1; i <= n; i++ {
		writePNG(t, filepath.Join(dir, strconv.Itoa(i)+".png"))
	}

	c := New(nil)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i-1] = c.Convert(context.Background(), filepath.Join(dir, strconv.Itoa(i)+".png"))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "page %d", i+1)
		pages, err := pdf.PageCount(filepath.Join(dir, strconv.Itoa(i+1)+".pdf"))
		require.NoError(t, err)
		require.Equal(t, 1, pages)
	}
}

func TestConvertTranscodesGIF(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raster := filepath.Join(dir, "2.gif")
	writeGIF(t, raster)

	doc, outcome, err := New(nil).Convert(context.Background(), raster)
	require.NoError(t, err)
	require.Equal(t, binder.OutcomeConverted, outcome)

	pages, err := pdf.PageCount(doc.LocalPath)
	require.NoError(t, err)
	require.Equal(t, 1, pages)
}

func TestConvertSkipsNonImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "5.jpg")
	require.NoError(t, os.WriteFile(path, []byte("<html>blocked</html>"), 0o600))

	_, outcome, err := New(nil).Convert(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, binder.OutcomeNotImage, outcome)
	require.FileExists(t, path)
	require.NoFileExists(t, filepath.Join(dir, "5.pdf"))
}

func TestConvertExistingOutputIsNoop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raster := filepath.Join(dir, "1.png")
	writePNG(t, raster)
	page := filepath.Join(dir, "1.pdf")
	require.NoError(t, os.WriteFile(page, []byte("existing"), 0o600))

	doc, outcome, err := New(nil).Convert(context.Background(), raster)
	require.NoError(t, err)
	require.Equal(t, binder.OutcomeExisting, outcome)
	require.Equal(t, page, doc.LocalPath)
	require.NoFileExists(t, raster)

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(page)
	require.NoError(t, err)
	require.Equal(t, "existing", string(data))
}

func TestConvertMissingInput(t *testing.T) {
	t.Parallel()

	_, _, err := New(nil).Convert(context.Background(), filepath.Join(t.TempDir(), "9.png"))
	require.Error(t, err)
}
