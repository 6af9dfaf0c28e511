// Package pdf holds the shared pdfcpu configuration.
package pdf

import (
	"fmt"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableOnce sync.Once

// Configuration returns a relaxed pdfcpu configuration. pdfcpu's on-disk
// config directory is disabled the first time this is called.
func Configuration() *model.Configuration {
	disableOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in the document at path.
func PageCount(path string) (int, error) {
	conf := Configuration()
	// #nosec G304 -- callers pass documents produced by this process.
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	n, err := api.PageCount(f, conf)
	if err != nil {
		return 0, fmt.Errorf("count pages in %s: %w", path, err)
	}
	return n, nil
}
