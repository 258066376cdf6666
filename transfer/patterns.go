package transfer

import (
	"github.com/joyshmitz/process-triage-sub001/model"
	"github.com/joyshmitz/process-triage-sub001/patterns"
)

// ImportPatterns merges a bundle's patterns into lib using the library's
// existing conflict-resolution machinery, then pools each pattern's
// acceptance stats via Library.MergeStats rather than letting either side's
// history clobber the other. Callers should run Validate on the bundle
// first.
func ImportPatterns(lib *patterns.Library, bundle model.TransferBundle, resolution patterns.ImportResolution) patterns.ImportReport {
	doc := model.SignatureSchema{
		SchemaVersion: bundle.SchemaMajor,
	}
	for _, entry := range bundle.Patterns {
		doc.Patterns = append(doc.Patterns, entry.Pattern)
	}

	report := lib.Import(doc, resolution)

	for _, entry := range bundle.Patterns {
		lib.MergeStats(entry.Pattern.Signature.Name, entry.Stats)
	}

	return report
}

// ExportPatterns snapshots a library's active patterns and their stats into
// the entry slice an ExportInput expects, tagging each with the exporting
// system's name and the export timestamp.
func ExportPatterns(lib *patterns.Library, sourceSystem string, exportedAtUnix int64) []model.TransferPatternEntry {
	active := lib.ActivePatterns()
	out := make([]model.TransferPatternEntry, 0, len(active))
	for _, p := range active {
		stamped := p
		stamped.SourceSystem = sourceSystem
		t := exportedAtUnix
		stamped.ExportedAt = &t
		out = append(out, model.TransferPatternEntry{
			Pattern: stamped,
			Stats:   lib.StatsFor(p.Signature.Name),
		})
	}
	return out
}
