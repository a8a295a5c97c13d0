package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/internal/middleware"
	"github.com/semanticallynull/ridemarket-backend/partnership"
	"github.com/semanticallynull/ridemarket-backend/user"
)

type createPartnershipRequest struct {
	CompanyID uuid.UUID `json:"companyId" binding:"required"`
	VendorID  uuid.UUID `json:"vendorId" binding:"required"`
}

func (a *API) createPartnershipHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req createPartnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	p, err := a.pr.Connect(c, req.CompanyID, req.VendorID)
	if err != nil {
		switch {
		case errors.Is(err, partnership.ErrAlreadyExists):
			errorResponse(c, http.StatusConflict, "ALREADY_EXISTS", err.Error())
		case errors.Is(err, partnership.ErrInvalidPair):
			errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		case errors.Is(err, user.ErrNotFound):
			errorResponse(c, http.StatusNotFound, "NOT_FOUND", err.Error())
		default:
			logger.ErrorContext(c, "failed to create partnership", "error", err)
			errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		}
		return
	}

	c.JSON(http.StatusCreated, p)
}

// listPartnershipsHandler answers GET /partnerships?companyId= or ?vendorId=.
func (a *API) listPartnershipsHandler(c *gin.Context) {
	id, t, ok := actorQuery(c)
	if !ok {
		return
	}

	u, err := a.ur.GetByID(c, id)
	if errors.Is(err, user.ErrNotFound) || (err == nil && u.Type != t) {
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "no "+t.String()+" with id "+id.String())
		return
	}
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to load user", "error", err)
		errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		return
	}

	ps, err := a.pr.CurrentPartnerships(c, u)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to list partnerships", "error", err)
		errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		return
	}

	c.JSON(http.StatusOK, ps)
}

// actorQuery reads exactly one of the companyId and vendorId query parameters.
func actorQuery(c *gin.Context) (uuid.UUID, user.Type, bool) {
	companyID, vendorID := c.Query("companyId"), c.Query("vendorId")
	if (companyID == "") == (vendorID == "") {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "exactly one of companyId and vendorId is required")
		return uuid.Nil, 0, false
	}

	raw, t := companyID, user.Company
	if vendorID != "" {
		raw, t = vendorID, user.Vendor
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", t.String()+"Id must be a uuid")
		return uuid.Nil, 0, false
	}
	return id, t, true
}
