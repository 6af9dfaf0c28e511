package sha256

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))

	h := New()
	got, err := h.HashFile(path)
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.HashFile(path)
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestHashFileMissing(t *testing.T) {
	t.Parallel()

	_, err := New().HashFile(filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
}
