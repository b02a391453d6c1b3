// Package report exports the pipeline outcome as an Excel workbook for the
// public works office.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/pipeline"
)

// ExcelWriter renders pipeline results into a three-sheet workbook:
// Schedule, Decisions and Budget.
type ExcelWriter struct {
	logger *zap.Logger
}

// NewExcelWriter creates an Excel report writer.
func NewExcelWriter(logger *zap.Logger) *ExcelWriter {
	return &ExcelWriter{logger: logger}
}

// Write builds the workbook and saves it to outputPath.
func (w *ExcelWriter) Write(results *pipeline.Results, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeScheduleSheet(f, results.Tasks); err != nil {
		return err
	}
	if err := w.writeDecisionsSheet(f, results.Decisions); err != nil {
		return err
	}
	if err := w.writeBudgetSheet(f, results); err != nil {
		return err
	}

	// The default sheet is replaced by Schedule.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		w.logger.Warn("Failed to remove default sheet", zap.Error(err))
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	w.logger.Info("Report written",
		zap.String("output_path", outputPath),
		zap.Int("tasks", len(results.Tasks)),
		zap.Int("decisions", len(results.Decisions)))
	return nil
}

func (w *ExcelWriter) writeScheduleSheet(f *excelize.File, tasks []*models.ScheduleTask) error {
	const sheet = "Schedule"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	headers := []string{"Project ID", "Title", "Status", "Start Week", "End Week", "Crew Type", "Crew Size"}
	for col, h := range headers {
		w.setCell(f, sheet, cellRef(col, 1), h)
	}

	for i, task := range tasks {
		row := i + 2
		w.setCell(f, sheet, cellRef(0, row), task.ProjectID)
		w.setCell(f, sheet, cellRef(1, row), task.Title)
		w.setCell(f, sheet, cellRef(2, row), task.Status)
		if task.Status == models.TaskScheduled {
			w.setCell(f, sheet, cellRef(3, row), task.StartWeek)
			w.setCell(f, sheet, cellRef(4, row), task.EndWeek)
		}
		w.setCell(f, sheet, cellRef(5, row), task.CrewType)
		w.setCell(f, sheet, cellRef(6, row), task.CrewSize)
	}
	return nil
}

func (w *ExcelWriter) writeDecisionsSheet(f *excelize.File, decisions []*models.PolicyDecision) error {
	const sheet = "Decisions"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	headers := []string{"Project ID", "Proposed", "Authorization", "Confidence", "Final", "Human Override", "Reason Codes", "Rationale"}
	for col, h := range headers {
		w.setCell(f, sheet, cellRef(col, 1), h)
	}

	for i, d := range decisions {
		row := i + 2
		w.setCell(f, sheet, cellRef(0, row), d.ProjectID)
		w.setCell(f, sheet, cellRef(1, row), d.Decision)
		w.setCell(f, sheet, cellRef(2, row), d.Authorization)
		w.setCell(f, sheet, cellRef(3, row), d.Confidence)
		if d.FinalDecision != nil {
			w.setCell(f, sheet, cellRef(4, row), *d.FinalDecision)
		}
		w.setCell(f, sheet, cellRef(5, row), d.HumanOverride)
		w.setCell(f, sheet, cellRef(6, row), joinCodes(d.ReasonCodes))
		w.setCell(f, sheet, cellRef(7, row), d.Rationale)
	}
	return nil
}

func (w *ExcelWriter) writeBudgetSheet(f *excelize.File, results *pipeline.Results) error {
	const sheet = "Budget"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	w.setCell(f, sheet, "A1", "Quarterly Budget")
	w.setCell(f, sheet, "B1", results.Budget.Total)
	w.setCell(f, sheet, "A2", "Allocated")
	w.setCell(f, sheet, "B2", results.Budget.Allocated)
	w.setCell(f, sheet, "A3", "Remaining")
	w.setCell(f, sheet, "B3", results.Budget.Remaining)
	w.setCell(f, sheet, "A4", "Pending Approvals")
	w.setCell(f, sheet, "B4", results.Pending)

	w.setCell(f, sheet, "A6", "Peak Crew Usage")
	row := 7
	for crewType, peak := range results.PeakUsage {
		w.setCell(f, sheet, cellRef(0, row), crewType)
		w.setCell(f, sheet, cellRef(1, row), peak)
		row++
	}
	return nil
}

func (w *ExcelWriter) setCell(f *excelize.File, sheet, cell string, value any) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		w.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func cellRef(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}

func joinCodes(codes []models.ReasonCode) string {
	out := ""
	for i, c := range codes {
		if i > 0 {
			out += ", "
		}
		out += string(c)
	}
	return out
}
