package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/gamification"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
)

const defaultLeaderboardLimit = 20

type gamificationApi struct {
	svc    gamification.ServiceInterface
	usrSvc user.ServiceInterface
}

func registerGamificationAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc gamification.ServiceInterface,
	usrSvc user.ServiceInterface,
) {
	api := gamificationApi{svc: svc, usrSvc: usrSvc}

	gg := g.Group("/gamification")
	gg.GET("/profile", api.profile, jwt)
	gg.GET("/profile/:userID", api.profile, jwt)
	gg.GET("/leaderboard", api.leaderboard, jwt)
}

func (api *gamificationApi) profile(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.svc.Profile(ctx.Request().Context(), actor, ctx.Param("userID"))
	if err != nil {
		return errors.Wrap(err, "building profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *gamificationApi) leaderboard(ctx echo.Context) error {
	if _, err := getContextUser(ctx, api.usrSvc); err != nil {
		return err
	}
	limit := queryInt(ctx, "limit", defaultLeaderboardLimit)
	if limit < 1 {
		limit = defaultLeaderboardLimit
	}
	courseID := core.CleanString(ctx.QueryParam("course_id"))

	entries, err := api.svc.Leaderboard(ctx.Request().Context(), courseID, limit)
	if err != nil {
		return errors.Wrap(err, "building leaderboard")
	}
	if entries == nil {
		entries = []gamification.LeaderboardEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
