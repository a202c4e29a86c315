package sheets

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
)

func workbook(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		row := row
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", addr, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadQuestions(t *testing.T) {
	buf := workbook(t,
		[]interface{}{"kind", "text", "options", "correct", "accepted answers", "points"},
		[]interface{}{"single_choice", "2 + 2 = ?", "3 | 4 | 5", "2", "", 2},
		[]interface{}{"MULTIPLE_CHOICE", "Primes?", "2|3|4", "1,2"},
		[]interface{}{},
		[]interface{}{"SHORT_ANSWER", "Capital of Kazakhstan?", "", "", "Astana|Nur-Sultan"},
		[]interface{}{"SINGLE_CHOICE", "Broken", "a|b", "zero"},
		[]interface{}{"TRUE_FALSE", "Water is wet", "", "1", "", "x"},
	)

	questions, rowErrs, err := ReadQuestions(buf)
	require.NoError(t, err)

	want := []assessment.NewQuestion{
		{Kind: assessment.KindSingleChoice, Text: "2 + 2 = ?", Options: []string{"3", "4", "5"}, CorrectChoices: []int{1}, Points: 2},
		{Kind: assessment.KindMultipleChoice, Text: "Primes?", Options: []string{"2", "3", "4"}, CorrectChoices: []int{0, 1}},
		{Kind: assessment.KindShortAnswer, Text: "Capital of Kazakhstan?", AcceptedAnswers: []string{"Astana", "Nur-Sultan"}},
	}
	assert.Equal(t, want, questions)

	require.Len(t, rowErrs, 2)
	assert.Equal(t, 6, rowErrs[0].Row)
	assert.EqualError(t, rowErrs[0], `row 6: invalid correct choice "zero"`)
	assert.Equal(t, 7, rowErrs[1].Row)
}

func TestReadQuestions_notAWorkbook(t *testing.T) {
	_, _, err := ReadQuestions(bytes.NewBufferString("kind,text\n"))
	assert.Error(t, err)
}

func TestWriteResults(t *testing.T) {
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := []ResultRow{
		{
			StudentName: "Saule", StudentEmail: "saule@test.kz", AttemptID: "a1",
			StartedAt: started, SubmittedAt: started.Add(8 * time.Minute),
			Score: 3, MaxScore: 4, Percent: 75, Passed: true, TimeSpentSeconds: 480,
		},
		{
			StudentName: "Aruzhan", AttemptID: "a2",
			StartedAt: started, SubmittedAt: started.Add(10 * time.Minute), AutoSubmitted: true,
			Score: 1, MaxScore: 4, Percent: 25, TimeSpentSeconds: 600,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, "Mock NUET", rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	got, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Student", got[0][0])
	assert.Equal(t, []string{
		"Saule", "saule@test.kz", "a1", "2026-03-02T09:00:00Z", "2026-03-02T09:08:00Z", "no",
		"3", "4", "75", "yes", "480",
	}, got[1])
	assert.Equal(t, "yes", got[2][5])
	assert.Equal(t, "no", got[2][9])
}
