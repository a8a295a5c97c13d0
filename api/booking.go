package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/internal/middleware"
	"github.com/semanticallynull/ridemarket-backend/user"
)

func (a *API) listBookingsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, t, ok := actorQuery(c)
	if !ok {
		return
	}

	var (
		bookings []booking.Booking
		err      error
	)
	if t == user.Company {
		bookings, err = a.bkr.ListByCompany(c, id)
	} else {
		bookings, err = a.bkr.ListByVendor(c, id)
	}
	if err != nil {
		logger.ErrorContext(c, "failed to list bookings", "error", err)
		errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		return
	}

	if status := c.Query("status"); status != "" {
		s, ok := booking.ParseStatus(status)
		if !ok {
			errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "unknown status "+status)
			return
		}
		filtered := make([]booking.Booking, 0, len(bookings))
		for _, b := range bookings {
			if b.Status == s {
				filtered = append(filtered, b)
			}
		}
		bookings = filtered
	}

	if bookings == nil {
		bookings = []booking.Booking{}
	}
	c.JSON(http.StatusOK, bookings)
}

// pendingBookingsHandler lists the unassigned pending bookings of the vendor's partner companies.
func (a *API) pendingBookingsHandler(c *gin.Context) {
	vendorID, err := uuid.Parse(c.Query("vendorId"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "vendorId must be a uuid")
		return
	}

	bookings, err := a.bkr.PendingForVendor(c, vendorID)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to list pending bookings", "vendor_id", vendorID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error")
		return
	}
	if bookings == nil {
		bookings = []booking.Booking{}
	}
	c.JSON(http.StatusOK, bookings)
}
