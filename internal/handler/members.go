package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"paie/internal/attendance"
)

// LookupMember is public and returns only the masked summary.
func (h *Handler) LookupMember(c *gin.Context) {
	m, err := h.svc.LookupMember(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": m})
}

type registerMemberRequest struct {
	RegistrationCode string `json:"registration_code" binding:"required"`
	Name             string `json:"name" binding:"required"`
	Email            string `json:"email" binding:"required,email"`
	Gender           string `json:"gender"`
	Year             string `json:"year"`
}

func (h *Handler) RegisterMember(c *gin.Context) {
	var req registerMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := h.svc.RegisterMember(c.Request.Context(), attendance.Member{
		RegistrationCode: req.RegistrationCode,
		Name:             req.Name,
		Email:            req.Email,
		Gender:           req.Gender,
		Year:             req.Year,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"member": m})
}

func (h *Handler) MemberStats(c *gin.Context) {
	stats, err := h.svc.MemberStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
