package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"paie/internal/attendance"
)

type requestCodeRequest struct {
	RegistrationCode string `json:"registration_code" binding:"required"`
}

func (h *Handler) RequestCode(c *gin.Context) {
	var req requestCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "registration_code is required")
		return
	}
	res, err := h.svc.RequestCode(c.Request.Context(), req.RegistrationCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type verifyCodeRequest struct {
	RegistrationCode string `json:"registration_code" binding:"required"`
	Code             string `json:"code" binding:"required"`
}

func (h *Handler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "registration_code and code are required")
		return
	}
	res, err := h.svc.VerifyCode(c.Request.Context(), req.RegistrationCode, req.Code, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type markRequest struct {
	RegistrationCode string `json:"registration_code" binding:"required"`
	Status           string `json:"status"`
}

func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "registration_code is required")
		return
	}
	res, err := h.svc.MarkDirect(c.Request.Context(), req.RegistrationCode, attendance.ParseStatus(req.Status), staffID(c), c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
