package export

import (
	"fmt"

	"urnlab/domain/experiment"

	"github.com/xuri/excelize/v2"
)

// Sheet names in the export workbook
const (
	sheetTrials   = "Trials"
	sheetTraining = "Training"
	sheetSummary  = "Summary"
)

// buildWorkbook renders the trial rows, training results and summaries into
// an XLSX workbook for researchers who take their data to spreadsheets
// rather than analysis scripts. The Trials sheet mirrors the CSV exactly.
func buildWorkbook(record *experiment.ExperimentRecord, rows [][]string, summaries exportSummaries) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetTrials); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheetTrials, cell, &values); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(sheetTraining); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheetTraining, "A1", &[]interface{}{"trial", "result"}); err != nil {
		return nil, err
	}
	for i, trial := range record.TrainingTrials {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetTraining, cell, &[]interface{}{trial.Trial, string(trial.Result)}); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return nil, err
	}
	if err := writeSummarySheet(f, record, summaries); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, record *experiment.ExperimentRecord, summaries exportSummaries) error {
	rows := [][]interface{}{
		{"participant_id", record.ParticipantID.String()},
		{"session_start", record.Timestamp.String()},
		{"training_accuracy", summaries.Training.Accuracy},
		{},
		{"stage", "trials", "black", "empirical_rate", "estimate_mean", "final_estimate", "final_abs_error", "true_probability"},
		{"stage1_jarA", summaries.Stage1.Trials, summaries.Stage1.BlackCount, summaries.Stage1.EmpiricalBlackRate,
			summaries.Stage1.EstimateMean, summaries.Stage1.FinalEstimate, summaries.Stage1.FinalAbsError, record.Stage1.TrueProbability},
		{"stage2_jarB", summaries.Stage2.Trials, summaries.Stage2.BlackCount, summaries.Stage2.EmpiricalBlackRate,
			summaries.Stage2.EstimateMean, summaries.Stage2.FinalEstimate, summaries.Stage2.FinalAbsError, record.Stage2.TrueProbability},
		{"stage3_jarA_return", summaries.Stage3.Trials, summaries.Stage3.BlackCount, summaries.Stage3.EmpiricalBlackRate,
			summaries.Stage3.EstimateMean, summaries.Stage3.FinalEstimate, summaries.Stage3.FinalAbsError, record.Stage3.TrueProbability},
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheetSummary, cell, &values); err != nil {
			return fmt.Errorf("summary row %d: %w", i+1, err)
		}
	}
	return nil
}
