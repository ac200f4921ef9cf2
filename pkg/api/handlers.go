package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/resumeassist/usagegate/pkg/account"
	"github.com/resumeassist/usagegate/pkg/ledger"
	"github.com/resumeassist/usagegate/pkg/requestctx"
)

type checkRequest struct {
	UserID string `json:"userId"`
	// Cost is a pointer so an omitted cost (default 1) differs from an explicit 0.
	Cost *int64 `json:"cost"`
}

type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Error   string `json:"error,omitempty"`
}

type userRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLimit(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int64{"limit": ledger.DailyLimit})
}

func (s *Server) handleCheck(c echo.Context) error {
	var req checkRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, checkResponse{Error: "invalid request body"})
	}
	cost := int64(1)
	if req.Cost != nil {
		cost = *req.Cost
	}

	allowed, err := s.deps.Ledger.CheckAndConsume(c.Request().Context(), req.UserID, cost)
	switch {
	case errors.Is(err, ledger.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, checkResponse{Error: ledger.InvalidReason(err)})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, checkResponse{Error: "failed to check usage"})
	}
	return c.JSON(http.StatusOK, checkResponse{Allowed: allowed})
}

func (s *Server) handleUsage(c echo.Context) error {
	var req userRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	usage, err := s.deps.Ledger.GetUsage(c.Request().Context(), req.UserID)
	switch {
	case errors.Is(err, ledger.ErrInvalidRequest):
		return jsonError(c, http.StatusBadRequest, ledger.InvalidReason(err))
	case err != nil:
		return jsonError(c, http.StatusInternalServerError, "failed to fetch usage")
	}
	return c.JSON(http.StatusOK, map[string]int64{"usage": usage})
}

func (s *Server) handleUserInit(c echo.Context) error {
	var req userRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return jsonError(c, http.StatusBadRequest, "missing user id")
	}
	if err := s.deps.Accounts.Init(c.Request().Context(), req.UserID, req.Email); err != nil {
		s.logger.Error("init account failed", zap.String("user_id", req.UserID), zap.Error(err))
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleJoined(c echo.Context) error {
	var req userRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return jsonError(c, http.StatusBadRequest, "missing user id")
	}
	joined, err := account.JoinedAt(c.Request().Context(), s.deps.Accounts, req.UserID)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return jsonError(c, http.StatusNotFound, "account not found")
	case err != nil:
		s.logger.Error("fetch join date failed", zap.String("user_id", req.UserID), zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "failed to fetch join date")
	}
	return c.JSON(http.StatusOK, map[string]string{"joinedAt": joined.UTC().Format(time.RFC3339)})
}

func (s *Server) handleFeature(c echo.Context) error {
	s.deps.Gateway.ServeFeature(c.Response(), c.Request(), c.Param("feature"))
	return nil
}

func jsonError(c echo.Context, code int, message string) error {
	return c.JSON(code, errorResponse{
		Error:     message,
		RequestID: requestctx.GetRequestID(c.Request().Context()),
	})
}
