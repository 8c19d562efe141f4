package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"urnlab/domain/experiment"
	"urnlab/domain/stats"
	"urnlab/ports"
)

// csvHeader is order-significant; analysis scripts index these columns by
// position as well as name.
var csvHeader = []string{
	"participant_id", "stage", "jar_color", "trial",
	"sample_color", "cumulative_black", "cumulative_total",
	"probability_estimate", "confidence", "true_probability",
}

// exportDocument is the JSON blob: the canonical record plus derived
// summaries and an integrity fingerprint of the canonical part.
type exportDocument struct {
	*experiment.ExperimentRecord
	Summaries   exportSummaries `json:"summaries"`
	Fingerprint string          `json:"fingerprint"`
}

type exportSummaries struct {
	Training stats.TrainingSummary `json:"training"`
	Stage1   stats.StageSummary    `json:"stage1_jarA"`
	Stage2   stats.StageSummary    `json:"stage2_jarB"`
	Stage3   stats.StageSummary    `json:"stage3_jarA_return"`
}

// Formatter renders completed experiment records to JSON, CSV and XLSX.
// It holds no state; all output is a pure function of the record.
type Formatter struct{}

// NewFormatter creates the export formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format renders the record to all export shapes. The record is validated
// first: exporting a session whose return stage does not extend stage 1
// indicates a wiring bug upstream.
func (f *Formatter) Format(record *experiment.ExperimentRecord) (*ports.ExportBundle, error) {
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to export inconsistent record: %w", err)
	}

	doc, err := buildDocument(record)
	if err != nil {
		return nil, err
	}

	jsonBlob, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export document: %w", err)
	}

	rows := buildCSVRows(record)

	workbook, err := buildWorkbook(record, rows, doc.Summaries)
	if err != nil {
		return nil, fmt.Errorf("build workbook: %w", err)
	}

	return &ports.ExportBundle{
		JSON:    jsonBlob,
		CSVRows: rows,
		XLSX:    workbook,
	}, nil
}

// WriteFiles renders the record and writes one file per shape under dir,
// named participant_<id>_<YYYYMMDD_HHMMSS>.<ext>.
func (f *Formatter) WriteFiles(dir string, record *experiment.ExperimentRecord) ([]string, error) {
	bundle, err := f.Format(record)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	base := fmt.Sprintf("participant_%s_%s", record.ParticipantID, record.Timestamp.FileStamp())

	jsonPath := filepath.Join(dir, base+".json")
	if err := os.WriteFile(jsonPath, bundle.JSON, 0o644); err != nil {
		return nil, fmt.Errorf("write JSON export: %w", err)
	}

	csvPath := filepath.Join(dir, base+".csv")
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(bundle.CSVRows); err != nil {
		return nil, fmt.Errorf("encode CSV export: %w", err)
	}
	if err := os.WriteFile(csvPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write CSV export: %w", err)
	}

	xlsxPath := filepath.Join(dir, base+".xlsx")
	if err := os.WriteFile(xlsxPath, bundle.XLSX, 0o644); err != nil {
		return nil, fmt.Errorf("write XLSX export: %w", err)
	}

	return []string{jsonPath, csvPath, xlsxPath}, nil
}

func buildDocument(record *experiment.ExperimentRecord) (*exportDocument, error) {
	s1, err := stats.SummarizeStage(record.Stage1)
	if err != nil {
		return nil, fmt.Errorf("summarize stage 1: %w", err)
	}
	s2, err := stats.SummarizeStage(record.Stage2)
	if err != nil {
		return nil, fmt.Errorf("summarize stage 2: %w", err)
	}
	s3, err := stats.SummarizeStage(record.Stage3)
	if err != nil {
		return nil, fmt.Errorf("summarize stage 3: %w", err)
	}
	fingerprint, err := record.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("fingerprint record: %w", err)
	}

	return &exportDocument{
		ExperimentRecord: record,
		Summaries: exportSummaries{
			Training: stats.SummarizeTraining(record.TrainingTrials),
			Stage1:   s1,
			Stage2:   s2,
			Stage3:   s3,
		},
		Fingerprint: fingerprint,
	}, nil
}

// buildCSVRows flattens the record trial-by-trial: header, then every stage
// in experiment order, one row per trial in draw order.
func buildCSVRows(record *experiment.ExperimentRecord) [][]string {
	rows := [][]string{csvHeader}

	stages := []struct {
		key  experiment.StageKey
		snap experiment.StageSnapshot
	}{
		{experiment.StageKey1, record.Stage1},
		{experiment.StageKey2, record.Stage2},
		{experiment.StageKey3, record.Stage3},
	}

	for _, s := range stages {
		cumulativeBlack := 0
		for i, sample := range s.snap.Samples {
			if sample == experiment.OutcomeBlack {
				cumulativeBlack++
			}
			rows = append(rows, []string{
				record.ParticipantID.String(),
				strconv.Itoa(s.key.Number()),
				string(s.key.JarColor()),
				strconv.Itoa(i + 1),
				string(sample),
				strconv.Itoa(cumulativeBlack),
				strconv.Itoa(i + 1),
				formatFloat(s.snap.Estimates[i]),
				formatFloat(s.snap.Confidences[i]),
				formatFloat(s.snap.TrueProbability),
			})
		}
	}

	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
