package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
)

// MaxExportRows caps a single export
const MaxExportRows = 10000

// OfferLister is the read side of the lifecycle engine used by exports
type OfferLister interface {
	List(ctx context.Context, filter port.OfferFilter) (*port.OfferPage, error)
}

// ExportService renders filtered offer lists into documents
type ExportService interface {
	Export(ctx context.Context, filter port.OfferFilter) ([]byte, error)
	ContentType() string
	FileName() string
}

type exportServiceImpl struct {
	lister   OfferLister
	exporter port.OfferExporter
	logger   Logger
	now      func() time.Time
}

// NewExportService creates a new ExportService
func NewExportService(lister OfferLister, exporter port.OfferExporter, logger Logger) ExportService {
	return &exportServiceImpl{
		lister:   lister,
		exporter: exporter,
		logger:   logger,
		now:      time.Now,
	}
}

// Export walks every page of the filter, ignoring the filter's own paging.
// Offers created after the walk starts are left out so pages cannot shift under it.
func (s *exportServiceImpl) Export(ctx context.Context, filter port.OfferFilter) ([]byte, error) {
	filter.Page = 1
	filter.PageSize = port.MaxPageSize
	if filter.CreatedAtOrBefore.IsZero() {
		filter.CreatedAtOrBefore = s.now().UTC()
	}

	var offers []*entity.Offer
	for len(offers) < MaxExportRows {
		page, err := s.lister.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list offers: %w", err)
		}
		offers = append(offers, page.Offers...)
		if len(page.Offers) < filter.PageSize || len(offers) >= page.Total {
			break
		}
		filter.Page++
	}
	if len(offers) > MaxExportRows {
		offers = offers[:MaxExportRows]
	}

	data, err := s.exporter.Export(ctx, offers)
	if err != nil {
		s.logger.Error("Failed to export offers", "count", len(offers), "error", err)
		return nil, fmt.Errorf("failed to export offers: %w", err)
	}

	s.logger.Info("Offers exported", "count", len(offers), "bytes", len(data))
	return data, nil
}

func (s *exportServiceImpl) ContentType() string {
	return s.exporter.ContentType()
}

func (s *exportServiceImpl) FileName() string {
	return "offers" + s.exporter.FileExtension()
}
