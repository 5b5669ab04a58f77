package diagnostics

import (
	"fmt"

	"github.com/sourcegraph/go-lsp"

	"github.com/dshills/extbridge/internal/uri"
)

// FromLSP converts a language server's published diagnostics into an entry.
// LSP positions are zero-based; markers are one-based.
func FromLSP(params lsp.PublishDiagnosticsParams) (Entry, error) {
	resource, err := uri.Parse(string(params.URI))
	if err != nil {
		return Entry{}, fmt.Errorf("diagnostics: %w", err)
	}
	data := make([]MarkerData, 0, len(params.Diagnostics))
	for _, d := range params.Diagnostics {
		data = append(data, MarkerData{
			Severity:        severityFromLSP(d.Severity),
			Message:         d.Message,
			Source:          d.Source,
			Code:            d.Code,
			StartLineNumber: d.Range.Start.Line + 1,
			StartColumn:     d.Range.Start.Character + 1,
			EndLineNumber:   d.Range.End.Line + 1,
			EndColumn:       d.Range.End.Character + 1,
		})
	}
	return Entry{Resource: resource, Markers: data}, nil
}

func severityFromLSP(s lsp.DiagnosticSeverity) Severity {
	switch s {
	case lsp.Warning:
		return SeverityWarning
	case lsp.Information:
		return SeverityInfo
	case lsp.Hint:
		return SeverityHint
	default:
		return SeverityError
	}
}

// ApplyLSP stores published diagnostics under owner.
func (s *MarkerService) ApplyLSP(owner string, params lsp.PublishDiagnosticsParams) error {
	e, err := FromLSP(params)
	if err != nil {
		return err
	}
	s.ChangeOne(owner, e.Resource, e.Markers)
	return nil
}
