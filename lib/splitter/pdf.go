package splitter

import (
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDF reads and writes pages with pdfcpu.
type PDF struct {
	conf *model.Configuration
}

func NewPDF() PDF {
	conf := model.NewDefaultConfiguration()
	// documents from the web are often slightly malformed
	conf.ValidationMode = model.ValidationRelaxed
	return PDF{conf: conf}
}

func (p PDF) PageCount(ctx context.Context, path string) (int, error) {
	return api.PageCountFile(path)
}

func (p PDF) WritePages(ctx context.Context, src, dst string, first, last int) error {
	return api.TrimFile(src, dst, []string{fmt.Sprintf("%d-%d", first, last)}, p.conf)
}
