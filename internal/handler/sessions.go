package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"paie/internal/attendance"
)

type openSessionRequest struct {
	Label string `json:"label" binding:"required"`
	Date  string `json:"date"`
}

func (h *Handler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var date time.Time
	if req.Date != "" {
		d, err := parseDate(req.Date, h.svc.Location())
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	sess, err := h.svc.OpenSession(c.Request.Context(), req.Label, date, staffID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

func (h *Handler) CloseSession(c *gin.Context) {
	sess, err := h.svc.CloseSession(c.Request.Context(), c.Param("id"), staffID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// ActiveSession answers with a null session when none is open.
func (h *Handler) ActiveSession(c *gin.Context) {
	sess, err := h.svc.Sessions().ActiveSession(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *Handler) ListSessions(c *gin.Context) {
	var f attendance.SessionFilter
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "active must be true or false")
			return
		}
		f.Active = &active
	}
	var ok bool
	if f.From, ok = h.optionalDate(c, "from"); !ok {
		return
	}
	if f.To, ok = h.optionalDate(c, "to"); !ok {
		return
	}
	sessions, err := h.svc.Sessions().ListSessions(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) SessionRecords(c *gin.Context) {
	records, err := h.svc.SessionRecords(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (h *Handler) Report(c *gin.Context) {
	f := attendance.ReportFilter{Year: c.Query("year")}
	var ok bool
	if f.From, ok = h.optionalDate(c, "from"); !ok {
		return
	}
	if f.To, ok = h.optionalDate(c, "to"); !ok {
		return
	}
	rep, err := h.svc.Report(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}
