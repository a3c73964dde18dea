package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"paie/internal/attendance"
	"paie/internal/auth"
	"paie/internal/httpmiddleware"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Config carries what the routes need besides the services.
type Config struct {
	JWTSigningKey string
	JWTIssuer     string
	// CodeLimiter throttles request-code per client IP. Nil disables it.
	CodeLimiter httpmiddleware.Limiter
	Checks      map[string]HealthCheck
}

// Handler serves the attendance API.
type Handler struct {
	svc   *attendance.Service
	staff *auth.Service
	cfg   Config
}

func New(svc *attendance.Service, staff *auth.Service, cfg Config) *Handler {
	return &Handler{svc: svc, staff: staff, cfg: cfg}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.GET("/sessions/active", h.ActiveSession)
	if h.cfg.CodeLimiter != nil {
		v1.POST("/attendance/request-code", httpmiddleware.Limit(h.cfg.CodeLimiter, "otc"), h.RequestCode)
	} else {
		v1.POST("/attendance/request-code", h.RequestCode)
	}
	v1.POST("/attendance/verify-code", h.VerifyCode)
	v1.GET("/members/lookup/:code", h.LookupMember)
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)
	v1.POST("/auth/logout", h.Logout)

	staff := v1.Group("", auth.StaffAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	admin := auth.RequireRole(auth.AdminRoles...)
	staff.GET("/sessions", h.ListSessions)
	staff.POST("/sessions", admin, h.OpenSession)
	staff.POST("/sessions/:id/close", admin, h.CloseSession)
	staff.GET("/sessions/:id/records", h.SessionRecords)
	staff.POST("/attendance/mark", admin, h.MarkAttendance)
	staff.GET("/reports/attendance", h.Report)
	staff.POST("/members", admin, h.RegisterMember)
	staff.GET("/members/:id/stats", h.MemberStats)
}

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.cfg.Checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func staffID(c *gin.Context) string {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Subject
}

// parseDate reads a calendar day in the service's timezone.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

// optionalDate parses the query parameter name, if present.
func (h *Handler) optionalDate(c *gin.Context, name string) (*time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	t, err := parseDate(v, h.svc.Location())
	if err != nil {
		badRequest(c, name+" must be a date (YYYY-MM-DD)")
		return nil, false
	}
	return &t, true
}
