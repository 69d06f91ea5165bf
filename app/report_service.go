package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"eegprep/domain/core"
	"eegprep/internal"
	"eegprep/ports"
)

// ReportService writes the human-readable products of a run: one file per
// renderer plus the reject log spreadsheet.
type ReportService struct {
	renderers []ports.ReportRendererPort
	exporter  ports.RejectLogExporterPort
	logger    *internal.Logger
}

// NewReportService creates a report service. exporter may be nil.
func NewReportService(exporter ports.RejectLogExporterPort, logger *internal.Logger, renderers ...ports.ReportRendererPort) *ReportService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ReportService{
		renderers: renderers,
		exporter:  exporter,
		logger:    logger.WithComponent("Report"),
	}
}

// Write renders out into dir, named after the run, and returns the paths written.
func (s *ReportService) Write(ctx context.Context, out *PipelineOutcome, dir string) ([]string, error) {
	if out == nil {
		return nil, core.NewEmptyInputError("no pipeline outcome to report")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	base := filepath.Join(dir, string(out.RunID))
	report := out.Report()

	var paths []string
	for _, r := range s.renderers {
		body, err := r.Render(ctx, report)
		if err != nil {
			return paths, fmt.Errorf("render %s report: %w", r.Extension(), err)
		}
		path := base + r.Extension()
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	if s.exporter != nil && out.RejectLog != nil {
		path := base + "-reject-log.xlsx"
		if err := s.exporter.Export(ctx, out.RejectLog, path); err != nil {
			return paths, fmt.Errorf("export reject log: %w", err)
		}
		paths = append(paths, path)
	}
	s.logger.Info("wrote %d report files to %s", len(paths), dir)
	return paths, nil
}
