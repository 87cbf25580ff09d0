package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	wkhtml "github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/gin-gonic/gin"
)

// ErrReportUnavailable is returned when the wkhtmltopdf binary is missing.
var ErrReportUnavailable = errors.New("wkhtmltopdf is not available")

// chart scripts need a moment before the page is printed
const javascriptDelay = 1500

func wkhtmlPDF(ctx context.Context, html []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pdfg, err := wkhtml.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReportUnavailable, err)
	}
	pdfg.PageSize.Set(wkhtml.PageSizeA4)
	pdfg.Orientation.Set(wkhtml.OrientationLandscape)

	page := wkhtml.NewPageReader(bytes.NewReader(html))
	page.JavascriptDelay.Set(javascriptDelay)
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("cannot create pdf: %w", err)
	}
	return pdfg.Bytes(), nil
}

// RenderPDF prints the dashboard page of a plant.
func (s *Server) RenderPDF(ctx context.Context, plantID uint) ([]byte, error) {
	plant, err := s.storage.GetPlant(ctx, plantID)
	if err != nil {
		return nil, err
	}
	o, err := s.loadOverview(ctx, plant)
	if err != nil {
		return nil, err
	}
	html, err := s.renderPage(o)
	if err != nil {
		return nil, err
	}
	return s.pdf(ctx, html)
}

func (s *Server) report(c *gin.Context) {
	plant := s.plantParam(c)
	if plant == nil {
		return
	}
	pdf, err := s.RenderPDF(c.Request.Context(), plant.ID)
	switch {
	case errors.Is(err, ErrReportUnavailable):
		abort(c, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		s.logger.Errorf("cannot render report of %s: %s", plant.Name, err)
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=plant-%d-report.pdf", plant.ID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
