package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
	"github.com/saidstrong/nuet-prep-academy-sub001/services/sheets"
)

const importFileField = "file"

type assessmentApi struct {
	svc      assessment.ServiceInterface
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerAssessmentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	optJWT echo.MiddlewareFunc,
	svc assessment.ServiceInterface,
	usrSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := assessmentApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	g.GET("/courses/:id/tests", api.queryTests, optJWT)
	g.GET("/tests/:id", api.retrieveTest, optJWT)

	staff := staffMiddleware()
	g.POST("/courses/:id/tests", api.createTest, jwt, staff)
	g.PUT("/tests/:id", api.updateTest, jwt, staff)
	g.DELETE("/tests/:id", api.destroyTest, jwt, staff)

	g.GET("/tests/:id/questions", api.listQuestions, jwt, staff)
	g.POST("/tests/:id/questions", api.addQuestion, jwt, staff)
	g.POST("/tests/:id/questions/import", api.importQuestions, jwt, staff)
	g.PUT("/questions/:id", api.updateQuestion, jwt, staff)
	g.DELETE("/questions/:id", api.destroyQuestion, jwt, staff)
}

// Tests

func (api *assessmentApi) queryTests(ctx echo.Context) error {
	actor, err := getOptionalContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	filter := new(assessment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assessment.Test{})
	}
	filter.Status = core.CleanString(filter.Status)
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tests, err := api.svc.QueryTests(ctx.Request().Context(), actor, ctx.Param("id"), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying tests")
	}
	if tests == nil {
		tests = []assessment.Test{}
	}
	return ctx.JSON(http.StatusOK, tests)
}

func (api *assessmentApi) retrieveTest(ctx echo.Context) error {
	actor, err := getOptionalContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	t, err := api.svc.GetTest(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting test")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *assessmentApi) createTest(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data assessment.NewTest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.CreateTest(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating test")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *assessmentApi) updateTest(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data assessment.UpdateTest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.UpdateTest(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating test")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *assessmentApi) destroyTest(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteTest(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting test")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Questions

func (api *assessmentApi) listQuestions(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	questions, err := api.svc.ListQuestions(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing questions")
	}
	if questions == nil {
		questions = []assessment.Question{}
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *assessmentApi) addQuestion(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data assessment.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	q, err := api.svc.AddQuestion(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

// importQuestions appends the questions of an uploaded xlsx workbook to the test.
// Nothing is imported unless every row is valid.
func (api *assessmentApi) importQuestions(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()

	t, err := api.svc.GetTest(rctx, &actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting test")
	}
	if ok, err := api.svc.CanManageTest(rctx, actor, t); err != nil {
		return errors.Wrap(err, "checking test permissions")
	} else if !ok {
		return assessment.ErrForbidden
	}

	fh, err := ctx.FormFile(importFileField)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: importFileField, Error: "an xlsx file is required"})
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer file.Close()

	questions, rowErrs, err := sheets.ReadQuestions(file)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: importFileField, Error: "not a valid xlsx workbook"})
	}

	var fldErrs []core.FieldError
	for _, rErr := range rowErrs {
		fldErrs = append(fldErrs, core.FieldError{Field: fmt.Sprintf("row %d", rErr.Row), Error: rErr.Err.Error()})
	}
	for i := range questions {
		if err := questions[i].Validate(api.validate); err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: fmt.Sprintf("question %d", i+1), Error: err.Error()})
		}
	}
	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}
	if len(questions) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: importFileField, Error: "no question found"})
	}

	n, err := api.svc.ImportQuestions(rctx, t.ID, questions)
	if err != nil {
		return errors.Wrap(err, "importing questions")
	}
	return ctx.JSON(http.StatusCreated, ImportResponse{Imported: n})
}

func (api *assessmentApi) updateQuestion(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data assessment.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	q, err := api.svc.UpdateQuestion(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *assessmentApi) destroyQuestion(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteQuestion(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type ImportResponse struct {
	Imported int `json:"imported"`
}
