package ports

import (
	"context"

	"eegprep/domain/rejection"
	"eegprep/domain/run"
)

// RejectLogExporterPort writes a reject log to a file.
type RejectLogExporterPort interface {
	Export(ctx context.Context, log *rejection.RejectLog, path string) error
}

// ReportRendererPort turns a run report into a document.
type ReportRendererPort interface {
	Render(ctx context.Context, report *run.Report) ([]byte, error)
	Extension() string
}
