package excel

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tl-its-umich-edu/placement-exams/internal/model"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	// Excel caps sheet names at 31 characters.
	maxSheetName = 31
	timeLayout   = "2006-01-02 15:04:05"
)

var submissionHeader = []any{"Status", "Submission ID", "Uniqname", "Score", "Submitted"}

// BuildReportWorkbook renders a report summary as a workbook: one summary sheet
// plus one sheet per exam listing its successes and failures.
func BuildReportWorkbook(summary model.ReportSummary) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	rows := [][]any{
		{"Report", summary.Report.Name},
		{"Run ID", summary.RunID},
		{"New", summary.Summary.NewCount},
		{"Success", summary.Summary.SuccessCount},
		{"Failure", summary.Summary.FailureCount},
		{},
		{"Exam", "SA Code", "Start", "End", "New", "Success", "Failure"},
	}
	for _, exam := range summary.Exams {
		rows = append(rows, []any{
			exam.Exam.Name,
			exam.Exam.SACode,
			formatTime(exam.Time.StartTime),
			formatTime(exam.Time.EndTime),
			exam.Summary.NewCount,
			exam.Summary.SuccessCount,
			exam.Summary.FailureCount,
		})
	}
	if err := writeRows(file, summarySheet, rows); err != nil {
		return nil, err
	}

	used := map[string]bool{summarySheet: true}
	for _, exam := range summary.Exams {
		name := SheetName(exam.Exam, used)
		used[name] = true

		if _, err := file.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}

		examRows := [][]any{submissionHeader}
		for _, sub := range exam.Successes {
			examRows = append(examRows, submissionRow("success", sub))
		}
		for _, sub := range exam.Failures {
			examRows = append(examRows, submissionRow("failure", sub))
		}
		if err := writeRows(file, name, examRows); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// SheetName picks a unique, Excel-safe sheet name for an exam.
func SheetName(exam model.Exam, used map[string]bool) string {
	base := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, exam.SACode+" "+exam.Name)
	base = truncateRunes(base, maxSheetName)

	name := base
	for i := 2; used[name]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
	}
	return name
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func submissionRow(status string, sub model.SubmissionSummary) []any {
	submitted := ""
	if sub.SubmittedTimestamp != nil {
		submitted = formatTime(*sub.SubmittedTimestamp)
	}
	return []any{status, sub.SubmissionID, sub.StudentUniqname, sub.Score.InexactFloat64(), submitted}
}

func writeRows(file *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, sheet, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
