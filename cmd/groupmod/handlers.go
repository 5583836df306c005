package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/ledger"
	"github.com/groupmeg/groupmod/automod/policy"
	"github.com/groupmeg/groupmod/automod/schedule"

	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type PolicyView struct {
	GroupID             chat.GroupID     `json:"group_id"`
	AntiFlood           bool             `json:"antiflood"`
	AntiSpam            bool             `json:"antispam"`
	AntiLink            bool             `json:"antilink"`
	WarnLimit           int              `json:"warn_limit"`
	MuteDurationSeconds int64            `json:"mute_duration_seconds"`
	EscalationAction    chat.ActionKind  `json:"escalation_action"`
	BannedWords         []string         `json:"banned_words"`
	AdminExemption      policy.Exemption `json:"admin_exemption"`
}

type WarningsOutput struct {
	GroupID  chat.GroupID     `json:"group_id"`
	UserID   chat.UserID      `json:"user_id"`
	Count    int              `json:"count"`
	Warnings []ledger.Warning `json:"warnings"`
}

type ActionsOutput struct {
	GroupID chat.GroupID              `json:"group_id"`
	Actions []ledger.ModerationAction `json:"actions"`
}

type TopWarnedOutput struct {
	GroupID chat.GroupID       `json:"group_id"`
	Users   []ledger.WarnCount `json:"users"`
}

type PostsOutput struct {
	Posts []schedule.ScheduledPost `json:"posts"`
}

type CancelPostOutput struct {
	ID        int64 `json:"id"`
	Cancelled bool  `json:"cancelled"`
}

func badRequest(c echo.Context, name string, err error) error {
	return c.JSON(http.StatusBadRequest, GenericError{
		Error:   name,
		Message: err.Error(),
	})
}

func (srv *Server) internalError(c echo.Context, err error) error {
	srv.logger.Warn("groupmod-http-internal-error", "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, GenericError{
		Error:   "InternalError",
		Message: err.Error(),
	})
}

func parseGroupParam(c echo.Context) (chat.GroupID, error) {
	id, err := strconv.ParseInt(c.Param("group"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid group id: %q", c.Param("group"))
	}
	return chat.GroupID(id), nil
}

// Parses an optional positive integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func (srv *Server) HandleGroupPolicy(c echo.Context) error {
	group, err := parseGroupParam(c)
	if err != nil {
		return badRequest(c, "InvalidGroup", err)
	}
	p, err := srv.policies.GetPolicy(c.Request().Context(), group)
	if err != nil {
		return srv.internalError(c, err)
	}
	return c.JSON(http.StatusOK, PolicyView{
		GroupID:             group,
		AntiFlood:           p.AntiFlood,
		AntiSpam:            p.AntiSpam,
		AntiLink:            p.AntiLink,
		WarnLimit:           p.WarnLimit,
		MuteDurationSeconds: int64(p.MuteDuration.Seconds()),
		EscalationAction:    p.EscalationAction,
		BannedWords:         p.BannedWords,
		AdminExemption:      p.AdminExemption,
	})
}

func (srv *Server) HandleWarnings(c echo.Context) error {
	group, err := parseGroupParam(c)
	if err != nil {
		return badRequest(c, "InvalidGroup", err)
	}
	uid, err := strconv.ParseInt(c.Param("user"), 10, 64)
	if err != nil || uid == 0 {
		return badRequest(c, "InvalidUser", fmt.Errorf("invalid user id: %q", c.Param("user")))
	}
	warnings, err := srv.ledger.ListWarnings(c.Request().Context(), group, chat.UserID(uid))
	if err != nil {
		return srv.internalError(c, err)
	}
	return c.JSON(http.StatusOK, WarningsOutput{
		GroupID:  group,
		UserID:   chat.UserID(uid),
		Count:    len(warnings),
		Warnings: warnings,
	})
}

func (srv *Server) HandleActions(c echo.Context) error {
	group, err := parseGroupParam(c)
	if err != nil {
		return badRequest(c, "InvalidGroup", err)
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return badRequest(c, "InvalidLimit", err)
	}
	var user chat.UserID
	if raw := c.QueryParam("user"); raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return badRequest(c, "InvalidUser", fmt.Errorf("invalid user id: %q", raw))
		}
		user = chat.UserID(uid)
	}
	actions, err := srv.ledger.ListActions(c.Request().Context(), group, user, limit)
	if err != nil {
		return srv.internalError(c, err)
	}
	return c.JSON(http.StatusOK, ActionsOutput{GroupID: group, Actions: actions})
}

func (srv *Server) HandleTopWarned(c echo.Context) error {
	group, err := parseGroupParam(c)
	if err != nil {
		return badRequest(c, "InvalidGroup", err)
	}
	n, err := queryInt(c, "n", 10)
	if err != nil {
		return badRequest(c, "InvalidLimit", err)
	}
	top, err := srv.ledger.TopWarned(c.Request().Context(), group, n)
	if err != nil {
		return srv.internalError(c, err)
	}
	return c.JSON(http.StatusOK, TopWarnedOutput{GroupID: group, Users: top})
}

func (srv *Server) HandleListPosts(c echo.Context) error {
	return c.JSON(http.StatusOK, PostsOutput{Posts: srv.dispatcher.Pending()})
}

func (srv *Server) HandleCancelPost(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "InvalidPostID", fmt.Errorf("invalid post id: %q", c.Param("id")))
	}
	existed := false
	for _, p := range srv.dispatcher.Pending() {
		if p.ID == id {
			existed = true
			break
		}
	}
	if err := srv.dispatcher.Cancel(c.Request().Context(), id); err != nil {
		return srv.internalError(c, err)
	}
	return c.JSON(http.StatusOK, CancelPostOutput{ID: id, Cancelled: existed})
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("groupmod-http-internal-error", "err", err)
	}
	_ = c.JSON(code, GenericStatus{Status: "error", Daemon: "groupmod", Message: errorMessage})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "groupmod"})
}
