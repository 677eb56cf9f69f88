package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/service"
	"go.uber.org/zap"
)

type Handler struct {
	user   *service.UserService
	group  *service.GroupService
	invite *service.InviteService
	match  *service.MatchService

	tokens        Authenticator
	healthChecker HealthChecker

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithAuthenticator(tokens Authenticator) *Handler {
	h.tokens = tokens
	return h
}

func (h *Handler) WithUserService(user *service.UserService) *Handler {
	h.user = user
	return h
}

func (h *Handler) WithGroupService(group *service.GroupService) *Handler {
	h.group = group
	return h
}

func (h *Handler) WithInviteService(invite *service.InviteService) *Handler {
	h.invite = invite
	return h
}

func (h *Handler) WithMatchService(match *service.MatchService) *Handler {
	h.match = match
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(RequestIDMiddleware())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if h.healthChecker != nil {
		e.GET("/health", h.healthChecker.HealthCheck())
	}

	public := e.Group("/api")
	public.POST("/users", h.SignUp)
	public.POST("/auth/login", h.Login)

	secured := e.Group("/api", AuthMiddleware(h.tokens))
	secured.GET("/me", h.Me)

	secured.GET("/groups", h.ListGroups)
	secured.POST("/groups", h.CreateGroup)
	secured.GET("/groups/:id", h.GetGroup)
	secured.PATCH("/groups/:id", h.UpdateGroup)
	secured.POST("/groups/:id/transfer", h.TransferOwnership)
	secured.POST("/groups/:id/leave", h.LeaveGroup)
	secured.POST("/groups/:id/invites", h.CreateInvite)
	secured.GET("/groups/:id/matches", h.ListMatches)
	secured.POST("/groups/:id/matches", h.RecordMatch)
	secured.GET("/matches/:id", h.GetMatch)

	secured.GET("/invites", h.ListInvites)
	secured.POST("/invites/:id/respond", h.RespondInvite)
	secured.POST("/invites/:id/cancel", h.CancelInvite)
}

func (h *Handler) SignUp(e echo.Context) error {
	l := GetLoggerFromContext(e)

	var req model.SignUp
	if err := decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("signing up", zap.String("username", req.Username))

	user, err := h.user.SignUp(e.Request().Context(), &req)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, user)
}

func (h *Handler) Login(e echo.Context) error {
	l := GetLoggerFromContext(e)

	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	token, user, err := h.user.Login(e.Request().Context(), req.Username, req.Password)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, struct {
		Token string      `json:"token"`
		User  *model.User `json:"user"`
	}{Token: token, User: user})
}

func (h *Handler) Me(e echo.Context) error {
	user, err := h.user.GetUser(e.Request().Context(), callerID(e))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, user)
}

func (h *Handler) ListGroups(e echo.Context) error {
	groups, err := h.group.ListGroupsForUser(e.Request().Context(), callerID(e))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, groups)
}

func (h *Handler) CreateGroup(e echo.Context) error {
	l := GetLoggerFromContext(e)

	var req struct {
		Name            string   `json:"name" validate:"required,max=120"`
		Sport           string   `json:"sport" validate:"required,max=80"`
		DefaultTeamSize int      `json:"default_team_size"`
		Invitees        []string `json:"invitees"`
	}
	if err := decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("creating group", zap.String("name", req.Name), zap.Int("invitees", len(req.Invitees)))

	group, err := h.group.CreateGroup(e.Request().Context(), callerID(e), &model.GroupDraft{
		Name:            req.Name,
		Sport:           req.Sport,
		DefaultTeamSize: req.DefaultTeamSize,
		Invitees:        req.Invitees,
	})
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, group)
}

func (h *Handler) GetGroup(e echo.Context) error {
	groupID, perr := pathID(e)
	if perr != nil {
		return h.transportError(e, perr)
	}

	detail, err := h.group.GetGroup(e.Request().Context(), callerID(e), groupID)
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, detail)
}

func (h *Handler) UpdateGroup(e echo.Context) error {
	l := GetLoggerFromContext(e)

	groupID, perr := pathID(e)
	if perr != nil {
		return h.transportError(e, perr)
	}

	var req model.GroupPatch
	if err := decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	group, err := h.group.UpdateGroup(e.Request().Context(), callerID(e), groupID, &req)
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, group)
}

func (h *Handler) TransferOwnership(e echo.Context) error {
	l := GetLoggerFromContext(e)

	groupID, perr := pathID(e)
	if perr != nil {
		return h.transportError(e, perr)
	}

	var req struct {
		NewOwnerID int64 `json:"new_owner_id" validate:"required"`
	}
	if err := decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	group, err := h.group.TransferOwnership(e.Request().Context(), callerID(e), groupID, req.NewOwnerID)
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, group)
}

func (h *Handler) LeaveGroup(e echo.Context) error {
	groupID, perr := pathID(e)
	if perr != nil {
		return h.transportError(e, perr)
	}

	deleted, err := h.group.LeaveGroup(e.Request().Context(), callerID(e), groupID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, struct {
		GroupID      int64 `json:"group_id"`
		GroupDeleted bool  `json:"group_deleted"`
	}{GroupID: groupID, GroupDeleted: deleted})
}

func (h *Handler) CreateInvite(e echo.Context) error {
	l := GetLoggerFromContext(e)

	groupID, perr := pathID(e)
	if perr != nil {
		return h.transportError(e, perr)
	}

	var req struct {
		Username string `json:"username" validate:"required"`
	}
	if err := decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	invite, err := h.invite.CreateInvite(e.Request().Context(), callerID(e), groupID, req.Username)
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusCreated, invite)
}

func (h *Handler) ListInvites(e echo.Context) error {
	invites, err := h.invite.ListPendingInvites(e.Request().Context(), callerID(e))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, invites)
}

func (h *Handler) RespondInvite(e echo.Context) error {
	l := GetLoggerFromContext(e)

	inviteID, perr := pathID(e)
	if perr != nil {
		return h.transportError(e, perr)
	}

	var req struct {
		Action model.InviteAction `json:"action" validate:"required"`
	}
	if err := decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	invite, err := h.invite.RespondInvite(e.Request().Context(), callerID(e), inviteID, req.Action)
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, invite)
}

func (h *Handler) CancelInvite(e echo.Context) error {
	inviteID, perr := pathID(e)
	if perr != nil {
		return h.transportError(e, perr)
	}

	invite, err := h.invite.CancelInvite(e.Request().Context(), callerID(e), inviteID)
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, invite)
}

func (h *Handler) RecordMatch(e echo.Context) error {
	l := GetLoggerFromContext(e)

	groupID, perr := pathID(e)
	if perr != nil {
		return h.transportError(e, perr)
	}

	var req matchRequest
	if err := decodeRequest(e, &req, toSubmissionStep); err != nil {
		l.Warn("invalid match request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("recording match", zap.Int64("group_id", groupID), zap.String("kind", req.Kind))

	match, err := h.match.RecordMatch(e.Request().Context(), callerID(e), groupID, req.submission)
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusCreated, match)
}

func (h *Handler) ListMatches(e echo.Context) error {
	groupID, perr := pathID(e)
	if perr != nil {
		return h.transportError(e, perr)
	}

	var limit, offset int
	if err := echo.QueryParamsBinder(e).
		Int("limit", &limit).
		Int("offset", &offset).
		BindError(); err != nil {
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, "limit and offset must be integers"))
	}

	matches, err := h.match.ListMatches(e.Request().Context(), callerID(e), groupID, limit, offset)
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, matches)
}

func (h *Handler) GetMatch(e echo.Context) error {
	matchID, perr := pathID(e)
	if perr != nil {
		return h.transportError(e, perr)
	}

	match, err := h.match.GetMatch(e.Request().Context(), callerID(e), matchID)
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, match)
}

func pathID(e echo.Context) (int64, *service.Error) {
	var id int64
	if err := echo.PathParamsBinder(e).MustInt64("id", &id).BindError(); err != nil {
		return 0, service.NewError(service.ErrorCodeInvalidBody, "id must be an integer")
	}
	return id, nil
}

type errorResponse struct {
	Error *service.Error `json:"error"`
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := errorResponse{Error: err}

	switch err.Code {
	case service.ErrorCodeValidation, service.ErrorCodeInvalidBody:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodePermission:
		return e.JSON(http.StatusForbidden, response)
	case service.ErrorCodeConflict:
		return e.JSON(http.StatusConflict, response)
	case service.ErrorCodeNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeUnauthorized:
		return e.JSON(http.StatusUnauthorized, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}
