package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core/attempt"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
)

type attemptApi struct {
	svc      attempt.ServiceInterface
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerAttemptAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc attempt.ServiceInterface,
	usrSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := attemptApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	g.POST("/tests/:id/attempts", api.start, jwt)

	ag := g.Group("/attempts")
	ag.GET("", api.query, jwt)
	ag.GET("/:id", api.retrieve, jwt)
	ag.POST("/:id/pause", api.pause, jwt)
	ag.POST("/:id/resume", api.resume, jwt)
	ag.PUT("/:id/answers", api.saveAnswers, jwt)
	ag.POST("/:id/submit", api.submit, jwt)
	ag.GET("/:id/result", api.result, jwt)
}

// start returns the open attempt of the student if there is one.
func (api *attemptApi) start(ctx echo.Context) error {
	student, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	view, err := api.svc.Start(ctx.Request().Context(), student, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *attemptApi) query(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	filter := new(attempt.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []attempt.Attempt{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	attempts, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []attempt.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *attemptApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	view, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting attempt")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *attemptApi) pause(ctx echo.Context) error {
	student, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	view, err := api.svc.Pause(ctx.Request().Context(), student, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "pausing attempt")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *attemptApi) resume(ctx echo.Context) error {
	student, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	view, err := api.svc.Resume(ctx.Request().Context(), student, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "resuming attempt")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *attemptApi) saveAnswers(ctx echo.Context) error {
	student, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data attempt.SaveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	view, err := api.svc.SaveAnswers(ctx.Request().Context(), student, ctx.Param("id"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "saving answers")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *attemptApi) submit(ctx echo.Context) error {
	student, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data attempt.SubmitRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitRequest")
	}

	rctx := ctx.Request().Context()
	if _, err := api.svc.Submit(rctx, student, ctx.Param("id"), data.Answers); err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	res, err := api.svc.Result(rctx, student, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attemptApi) result(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	res, err := api.svc.Result(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting result")
	}
	return ctx.JSON(http.StatusOK, res)
}
