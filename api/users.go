package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/internal/middleware"
	"github.com/semanticallynull/ridemarket-backend/user"
)

type createUserRequest struct {
	Email       string     `json:"email" binding:"required,email"`
	UserType    *user.Type `json:"userType" binding:"required"`
	CompanyName *string    `json:"companyName"`
	VendorName  *string    `json:"vendorName"`
	Phone       *string    `json:"phone"`
	Address     *string    `json:"address"`
}

type createUserResponse struct {
	User                user.User `json:"user"`
	PartnershipsCreated int       `json:"partnershipsCreated"`
}

func (a *API) createUserHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	u := user.User{
		Email:       req.Email,
		Type:        *req.UserType,
		CompanyName: req.CompanyName,
		VendorName:  req.VendorName,
		Phone:       req.Phone,
		Address:     req.Address,
	}
	if err := a.ur.Create(c, &u); err != nil {
		switch {
		case errors.Is(err, user.ErrEmailTaken):
			errorResponse(c, http.StatusConflict, "EMAIL_TAKEN", err.Error())
		case errors.Is(err, user.ErrInvalidFields):
			errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		default:
			logger.ErrorContext(c, "failed to create user", "error", err)
			errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		}
		return
	}

	// The user exists from here on; a failed bootstrap only leaves it with fewer partners
	created, err := a.pr.Bootstrap(c, u)
	if err != nil {
		logger.ErrorContext(c, "failed to bootstrap partnerships", "user_id", u.ID, "error", err)
	}

	c.JSON(http.StatusCreated, createUserResponse{User: u, PartnershipsCreated: created})
}

func (a *API) listUsersHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	types := []user.Type{user.Company, user.Vendor}
	if s := c.Query("type"); s != "" {
		t, err := user.ParseType(s)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		types = []user.Type{t}
	}

	users := []user.User{}
	for _, t := range types {
		us, err := a.ur.ListByType(c, t)
		if err != nil {
			logger.ErrorContext(c, "failed to list users", "error", err)
			errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
			return
		}
		users = append(users, us...)
	}

	c.JSON(http.StatusOK, users)
}

// pathUser loads the user named by the :userId path parameter, answering the request itself
// when it cannot.
func (a *API) pathUser(c *gin.Context) (user.User, bool) {
	id, ok := uuidParam(c, "userId")
	if !ok {
		return user.User{}, false
	}
	u, err := a.ur.GetByID(c, id)
	if errors.Is(err, user.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", err.Error())
		return user.User{}, false
	}
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to load user", "user_id", id, "error", err)
		errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		return user.User{}, false
	}
	return u, true
}

func (a *API) currentPartnersHandler(c *gin.Context) {
	u, ok := a.pathUser(c)
	if !ok {
		return
	}

	ps, err := a.pr.CurrentPartnerships(c, u)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to list partnerships", "error", err)
		errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"userId": u.ID, "partnerships": ps, "count": len(ps)})
}

func (a *API) availablePartnersHandler(c *gin.Context) {
	u, ok := a.pathUser(c)
	if !ok {
		return
	}

	available, err := a.pr.AvailablePartners(c, u)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to list available partners", "error", err)
		errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"userId": u.ID, "availablePartners": available, "count": len(available)})
}

func (a *API) ongoingRidesHandler(c *gin.Context) {
	u, ok := a.pathUser(c)
	if !ok {
		return
	}

	var (
		rides []booking.Booking
		err   error
	)
	if u.Type == user.Company {
		rides, err = a.bkr.OngoingForCompany(c, u.ID)
	} else {
		rides, err = a.bkr.OngoingForVendor(c, u.ID)
	}
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to list ongoing rides", "error", err)
		errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"userId": u.ID, "ongoingRides": rides, "count": len(rides)})
}
