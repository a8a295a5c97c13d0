package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/internal/auth0"
	"github.com/semanticallynull/ridemarket-backend/internal/middleware"
	"github.com/semanticallynull/ridemarket-backend/internal/o11y"
	"github.com/semanticallynull/ridemarket-backend/internal/ws"
	"github.com/semanticallynull/ridemarket-backend/partnership"
	"github.com/semanticallynull/ridemarket-backend/user"
)

type Users interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	ListByType(ctx context.Context, t user.Type) ([]user.User, error)
}

type Partners interface {
	Bootstrap(ctx context.Context, u user.User) (int, error)
	Connect(ctx context.Context, companyID, vendorID uuid.UUID) (partnership.Partnership, error)
	CurrentPartnerships(ctx context.Context, u user.User) ([]partnership.Partnership, error)
	AvailablePartners(ctx context.Context, u user.User) ([]user.User, error)
}

type Bookings interface {
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]booking.Booking, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]booking.Booking, error)
	OngoingForCompany(ctx context.Context, companyID uuid.UUID) ([]booking.Booking, error)
	OngoingForVendor(ctx context.Context, vendorID uuid.UUID) ([]booking.Booking, error)
	PendingForVendor(ctx context.Context, vendorID uuid.UUID) ([]booking.Booking, error)
}

type Config struct {
	// Auth protects the REST routes when set.
	Auth gin.HandlerFunc

	MetricsUsername string
	MetricsPassword string
	AllowedOrigins  []string

	// Sessions is mounted at /ws when set.
	Sessions http.Handler
	// SessionTokens enables POST /ws/token.
	SessionTokens   *ws.TokenVerifier
	SessionTokenTTL time.Duration
	// Identity, when set, only issues session tokens to the holder of the actor's email.
	Identity auth0.Client
}

type API struct {
	r   *gin.Engine
	ur  Users
	pr  Partners
	bkr Bookings
	cfg Config
}

func New(obs *o11y.Observability, ur Users, pr Partners, bkr Bookings, cfg Config) *API {
	a := &API{
		r:   gin.New(),
		ur:  ur,
		pr:  pr,
		bkr: bkr,
		cfg: cfg,
	}
	if a.cfg.SessionTokenTTL <= 0 {
		a.cfg.SessionTokenTTL = 12 * time.Hour
	}

	a.r.Use(gin.Recovery())
	a.r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	a.r.Use(middleware.Tracing())
	a.r.Use(middleware.Logging(obs.Logger))
	a.r.Use(middleware.Metrics(obs.Registry))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	metrics := gin.WrapH(promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{}))
	if cfg.MetricsUsername != "" {
		a.r.GET("/metrics", gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}), metrics)
	} else {
		a.r.GET("/metrics", metrics)
	}

	if cfg.Sessions != nil {
		a.r.GET("/ws", gin.WrapH(cfg.Sessions))
	}

	protected := a.r.Group("/")
	if cfg.Auth != nil {
		protected.Use(cfg.Auth)
	}
	{
		protected.POST("/users", a.createUserHandler)
		protected.GET("/users", a.listUsersHandler)
		protected.GET("/users/:userId/current-partners", a.currentPartnersHandler)
		protected.GET("/users/:userId/available-partners", a.availablePartnersHandler)
		protected.GET("/users/:userId/ongoing-rides", a.ongoingRidesHandler)

		protected.POST("/partnerships", a.createPartnershipHandler)
		protected.GET("/partnerships", a.listPartnershipsHandler)

		protected.GET("/bookings", a.listBookingsHandler)
		protected.GET("/bookings/pending", a.pendingBookingsHandler)

		if cfg.SessionTokens != nil {
			protected.POST("/ws/token", a.sessionTokenHandler)
		}
	}

	return a
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", middleware.RequestIDHeader)
	cfg.ExposeHeaders = []string{middleware.RequestIDHeader}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// errorResponse writes the error body every handler uses.
func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"code": code, "message": message})
}

// uuidParam parses the named path parameter, answering 400 when it is not a uuid.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", name+" must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}
