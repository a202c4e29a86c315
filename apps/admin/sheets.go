package main

import (
	"context"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/attempt"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
	"github.com/saidstrong/nuet-prep-academy-sub001/services/sheets"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// importQuestions appends the questions of an xlsx workbook to a test. Nothing is imported unless every row is valid.
func (cli *commandLine) importQuestions(testID, path string) error {
	ctx := context.Background()
	t, err := cli.testRepo.GetTest(ctx, testID)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	questions, rowErrs, err := sheets.ReadQuestions(f)
	if err != nil {
		return err
	}
	var problems []string
	for _, rErr := range rowErrs {
		problems = append(problems, rErr.Error())
	}
	for i := range questions {
		if err := questions[i].Validate(cli.validate); err != nil {
			problems = append(problems, fmt.Sprintf("question %d: %v", i+1, err))
		}
	}
	if len(problems) > 0 {
		return errors.Errorf("invalid workbook:\n  %s", strings.Join(problems, "\n  "))
	}
	if len(questions) == 0 {
		return errors.New("no question found")
	}

	n, err := cli.testSvc.ImportQuestions(ctx, t.ID, questions)
	if err != nil {
		return err
	}
	cli.logger.Info(fmt.Sprintf("%d questions imported into %q", n, t.Title))
	return nil
}

// exportResults writes every submitted attempt of a test to an xlsx workbook, oldest submission first.
// The workbook is mailed to sendTo when it is set.
func (cli *commandLine) exportResults(testID, path, sendTo string) error {
	ctx := context.Background()
	var to *mail.Address
	if sendTo != "" {
		addr, err := mail.ParseAddress(sendTo)
		if err != nil {
			return errors.Wrapf(err, "invalid email %q", sendTo)
		}
		to = addr
	}

	t, err := cli.testRepo.GetTest(ctx, testID)
	if err != nil {
		return err
	}

	attempts, err := cli.attemptRepo.Query(
		ctx,
		&attempt.QueryFilter{TestID: t.ID, Status: attempt.StatusSubmitted},
		[]core.DBOrdering{{Field: "submitted_at", Ascending: true}},
	)
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}

	students := make(map[string]user.User)
	rows := make([]sheets.ResultRow, 0, len(attempts))
	for _, a := range attempts {
		usr, ok := students[a.StudentID]
		if !ok {
			if usr, err = cli.usrRepo.GetByID(ctx, a.StudentID); err != nil && errors.Cause(err) != user.ErrNotFound {
				return err
			}
			students[a.StudentID] = usr
		}
		row := sheets.ResultRow{
			StudentName:      usr.Name,
			StudentEmail:     usr.Email,
			AttemptID:        a.ID,
			StartedAt:        a.StartedAt,
			AutoSubmitted:    a.AutoSubmitted,
			Score:            a.Score,
			MaxScore:         a.MaxScore,
			Percent:          a.Percent,
			Passed:           a.Passed,
			TimeSpentSeconds: a.TimeSpentSeconds,
		}
		if a.SubmittedAt != nil {
			row.SubmittedAt = *a.SubmittedAt
		}
		rows = append(rows, row)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating workbook")
	}
	if err = sheets.WriteResults(f, t.Title, rows); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "closing workbook")
	}
	cli.logger.Info(fmt.Sprintf("%d results exported to %s", len(rows), path))

	if to == nil {
		return nil
	}
	return cli.mailResults(*to, t.Title, path, len(rows))
}

func (cli *commandLine) mailResults(to mail.Address, testTitle, path string, count int) error {
	msg := &core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      "Results: " + testTitle,
		TemplateName: "results_export",
		TemplateData: map[string]interface{}{"TestTitle": testTitle, "Count": count},
	}
	if err := msg.AttachFile(path, xlsxContentType); err != nil {
		return errors.Wrap(err, "attaching workbook")
	}
	cli.mailSvc.SendMessages(msg)
	if w, ok := cli.mailSvc.(interface{ Wait() }); ok {
		w.Wait()
	}
	return nil
}
