package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
	"github.com/noah-isme/ops-tracker-api/pkg/export"
)

// Supported export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type auditTrailSource interface {
	Export(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogDetail, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders the audit trail as CSV or PDF.
type ExportService struct {
	source    auditTrailSource
	renderers map[string]datasetRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService wires the default CSV and PDF renderers.
func NewExportService(source auditTrailSource, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		source: source,
		renderers: map[string]datasetRenderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    time.Now,
	}
}

// AuditTrail renders the records selected by filter in the given format.
func (s *ExportService) AuditTrail(ctx context.Context, filter models.AuditFilter, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	logs, err := s.source.Export(ctx, filter)
	if err != nil {
		return nil, err
	}

	body, err := renderer.Render(auditDataset(logs))
	if err != nil {
		s.logger.Error("audit export render failed", zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("audit-trail-%s.%s", s.now().UTC().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func auditDataset(logs []models.AuditLogDetail) export.Dataset {
	data := export.Dataset{
		Title: "Audit trail",
		Columns: []export.Column{
			{Key: "time", Label: "Time", Weight: 1.6},
			{Key: "action", Label: "Action", Weight: 1.6},
			{Key: "status", Label: "Status", Weight: 0.8},
			{Key: "actor", Label: "Actor", Weight: 1.4},
			{Key: "target", Label: "Target", Weight: 1.4},
			{Key: "description", Label: "Description", Weight: 3},
			{Key: "ip", Label: "IP", Weight: 1},
		},
		Rows: make([]map[string]string, 0, len(logs)),
	}
	for _, log := range logs {
		data.Rows = append(data.Rows, map[string]string{
			"time":        log.CreatedAt.UTC().Format(time.RFC3339),
			"action":      string(log.Action),
			"status":      string(log.Status),
			"actor":       firstOf(log.UserEmail, log.UserID),
			"target":      firstOf(log.TargetIssueCode, log.TargetUserEmail, log.TargetIssueID, log.TargetUserID),
			"description": log.Description,
			"ip":          log.IPAddress,
		})
	}
	return data
}

func firstOf(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
