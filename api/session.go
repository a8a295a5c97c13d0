package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/internal/auth0"
	"github.com/semanticallynull/ridemarket-backend/internal/middleware"
	"github.com/semanticallynull/ridemarket-backend/user"
)

type sessionTokenRequest struct {
	ActorID uuid.UUID `json:"actorId" binding:"required"`
}

type sessionTokenResponse struct {
	Token     string    `json:"token"`
	ActorType user.Type `json:"actorType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// sessionTokenHandler issues the handshake token a client presents on /ws.
func (a *API) sessionTokenHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req sessionTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	u, err := a.ur.GetByID(c, req.ActorID)
	if errors.Is(err, user.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		logger.ErrorContext(c, "failed to load user", "error", err)
		errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		return
	}

	if a.cfg.Identity != nil {
		accessToken := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		info, err := a.cfg.Identity.GetUserInfo(c, accessToken)
		if err == nil {
			err = info.Owns(u.Email)
		}
		if errors.Is(err, auth0.ErrEmailMismatch) {
			errorResponse(c, http.StatusForbidden, "FORBIDDEN", err.Error())
			return
		}
		if err != nil {
			logger.ErrorContext(c, "failed to fetch user info", "error", err)
			errorResponse(c, http.StatusBadGateway, "IDENTITY_UNAVAILABLE", "could not verify identity")
			return
		}
	}

	token, expires, err := a.cfg.SessionTokens.Issue(u.Type, u.ID, a.cfg.SessionTokenTTL)
	if err != nil {
		logger.ErrorContext(c, "failed to sign session token", "error", err)
		errorResponse(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	if sub, ok := middleware.GetAuth0ID(c); ok {
		logger.InfoContext(c, "issued session token", "auth0_id", sub, "actor_id", u.ID)
	}
	c.JSON(http.StatusOK, sessionTokenResponse{Token: token, ActorType: u.Type, ExpiresAt: expires})
}
