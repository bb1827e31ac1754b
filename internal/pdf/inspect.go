package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Inspector parses a PDF's structure. Used by the downloader in strict mode
// to reject files that carry the %PDF header but do not parse.
type Inspector struct {
	conf *model.Configuration
}

// NewInspector creates an inspector with pdfcpu's relaxed validation.
func NewInspector() *Inspector {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Inspector{conf: conf}
}

// PageCount validates content and returns its number of pages.
func (i *Inspector) PageCount(content []byte) (int, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), i.conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	if ctx.PageCount == 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return ctx.PageCount, nil
}
