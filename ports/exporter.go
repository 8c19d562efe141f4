package ports

import (
	"urnlab/domain/experiment"
)

// ExportBundle is the rendered output for one completed session. CSV rows
// are order-significant: header first, then one row per trial per stage in
// stage order.
type ExportBundle struct {
	JSON    []byte
	CSVRows [][]string
	XLSX    []byte
}

// ExporterPort renders a frozen experiment record. Formatting must be
// deterministic: exporting the same unmodified record twice yields
// byte-identical content.
type ExporterPort interface {
	// Format renders the record to all export shapes
	Format(record *experiment.ExperimentRecord) (*ExportBundle, error)

	// WriteFiles renders the record and writes the JSON, CSV and XLSX files
	// under dir using the participant/timestamp naming scheme. Returns the
	// written paths.
	WriteFiles(dir string, record *experiment.ExperimentRecord) ([]string, error)
}
