// Package sheets reads question banks from and writes test results to xlsx workbooks.
package sheets

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
)

// QuestionHeader is the expected first row of a question sheet.
// Options and accepted answers are separated by "|"; correct choices are 1-based option numbers separated by ",".
var QuestionHeader = []string{"kind", "text", "options", "correct", "accepted answers", "points"}

var resultsHeader = []interface{}{
	"Student", "Email", "Attempt", "Started at", "Submitted at", "Auto submitted",
	"Score", "Max score", "Percent", "Passed", "Time spent (s)",
}

// RowError locates an unparsable row (1-based, as displayed by spreadsheet apps).
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func splitList(s, sep string) []string {
	var res []string
	for _, item := range strings.Split(s, sep) {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func parseQuestion(row []string) (assessment.NewQuestion, error) {
	nq := assessment.NewQuestion{
		Kind:            strings.ToUpper(cell(row, 0)),
		Text:            cell(row, 1),
		Options:         splitList(cell(row, 2), "|"),
		AcceptedAnswers: splitList(cell(row, 4), "|"),
	}
	for _, c := range splitList(cell(row, 3), ",") {
		n, err := strconv.Atoi(c)
		if err != nil || n < 1 {
			return nq, errors.Errorf("invalid correct choice %q", c)
		}
		nq.CorrectChoices = append(nq.CorrectChoices, n-1)
	}
	if p := cell(row, 5); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nq, errors.Errorf("invalid points %q", p)
		}
		nq.Points = n
	}
	return nq, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ReadQuestions parses the first sheet of the workbook in r. The header row and blank rows are skipped.
// Rows that cannot be parsed are reported in the returned RowErrors; the questions are not validated.
func ReadQuestions(r io.Reader) ([]assessment.NewQuestion, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook has no sheet")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading rows")
	}

	var (
		questions []assessment.NewQuestion
		rowErrs   []RowError
	)
	for i, row := range rows {
		if isBlank(row) || (i == 0 && strings.EqualFold(cell(row, 0), QuestionHeader[0])) {
			continue
		}
		nq, err := parseQuestion(row)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: i + 1, Err: err})
			continue
		}
		questions = append(questions, nq)
	}
	return questions, rowErrs, nil
}

// ResultRow is one submitted attempt in a results export.
type ResultRow struct {
	StudentName      string
	StudentEmail     string
	AttemptID        string
	StartedAt        time.Time
	SubmittedAt      time.Time
	AutoSubmitted    bool
	Score            int
	MaxScore         int
	Percent          float64
	Passed           bool
	TimeSpentSeconds int
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// WriteResults writes the results of a test as a single sheet workbook to w.
func WriteResults(w io.Writer, testTitle string, rows []ResultRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if err := f.SetDocProps(&excelize.DocProperties{Title: testTitle, Creator: "academy"}); err != nil {
		return errors.Wrap(err, "setting properties")
	}

	if err := f.SetSheetRow(sheet, "A1", &resultsHeader); err != nil {
		return errors.Wrap(err, "writing header")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	lastCol, _ := excelize.ColumnNumberToName(len(resultsHeader))
	if err = f.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}
	if err = f.SetColWidth(sheet, "A", "C", 28); err != nil {
		return errors.Wrap(err, "sizing columns")
	}

	for i, r := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			r.StudentName, r.StudentEmail, r.AttemptID,
			r.StartedAt.UTC().Format(time.RFC3339), r.SubmittedAt.UTC().Format(time.RFC3339), yesNo(r.AutoSubmitted),
			r.Score, r.MaxScore, r.Percent, yesNo(r.Passed), r.TimeSpentSeconds,
		}
		if err = f.SetSheetRow(sheet, addr, &values); err != nil {
			return errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	if err = f.Write(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}

// WriteQuestionTemplate writes an empty question sheet holding only the header row.
func WriteQuestionTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := make([]interface{}, 0, len(QuestionHeader))
	for _, h := range QuestionHeader {
		header = append(header, h)
	}
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	return errors.Wrap(f.Write(w), "writing workbook")
}
