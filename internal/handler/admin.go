package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/report"
)

// DeviceRegister enrolls a kiosk device and issues its token pair.
func (h *Handler) DeviceRegister(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authRepo.UpsertDevice(c.Request.Context(), req.DeviceID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "device registration failed"})
		return
	}

	tokens, err := auth.Issue(req.DeviceID, auth.RoleDevice, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	if err := h.authRepo.SaveRefreshToken(c.Request.Context(), req.DeviceID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		// The device can still use the access token and re-register when it
		// expires; refresh just won't work for this pair.
		h.log.Error().Err(err).Str("device_id", req.DeviceID).Msg("refresh token save failed")
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// DeviceRefresh rotates a device's token pair. The presented refresh token is
// checked against the store and revoked before the replacement is issued, so
// a token can only be exchanged once.
func (h *Handler) DeviceRefresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := auth.Parse(req.RefreshToken, h.cfg.JWTSigningKey, h.cfg.JWTIssuer)
	if err != nil || claims.Role != auth.RoleDevice {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	// The atomic claim-and-revoke is the guard: of two concurrent exchanges of
	// the same token, exactly one proceeds past this point.
	claimed, err := h.authRepo.ConsumeRefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token lookup failed"})
		return
	}
	if !claimed {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token expired or revoked"})
		return
	}

	tokens, err := auth.Issue(claims.Subject, auth.RoleDevice, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	if err := h.authRepo.SaveRefreshToken(c.Request.Context(), claims.Subject, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		h.log.Error().Err(err).Str("device_id", claims.Subject).Msg("rotated refresh token save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token rotation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// AdminToken exchanges the configured admin key for an admin JWT.
func (h *Handler) AdminToken(c *gin.Context) {
	var req struct {
		Key string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Key != h.cfg.AdminAPIKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
		return
	}

	tokens, err := auth.Issue("admin", auth.RoleAdmin, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": tokens.AccessToken,
		"expires_at":   tokens.AccessExp.Unix(),
	})
}

// AdminAttendance returns the joined attendance report.
func (h *Handler) AdminAttendance(c *gin.Context) {
	limit, offset := pageParams(c)
	rows, err := h.reports.ListReport(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err, "report query failed")
		return
	}
	if rows == nil {
		rows = []attendance.ReportRow{}
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

// AdminReportPDF renders the same report as a downloadable PDF.
func (h *Handler) AdminReportPDF(c *gin.Context) {
	limit, offset := pageParams(c)
	rows, err := h.reports.ListReport(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err, "report query failed")
		return
	}

	pdf, err := report.RenderPDF(rows, time.Now())
	if err != nil {
		h.fail(c, err, "pdf render failed")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance-report.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// AdminEmployees lists enrolled employees.
func (h *Handler) AdminEmployees(c *gin.Context) {
	employees, err := h.employees.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, "employee query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"employees": employees})
}

// AdminReconcile runs the photo-directory consistency check on demand.
func (h *Handler) AdminReconcile(c *gin.Context) {
	rep, err := h.reconciler(c)
	if err != nil {
		h.fail(c, err, "reconcile failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"clean": rep.Clean(), "report": rep})
}

const maxPageSize = 500

func pageParams(c *gin.Context) (limit, offset int) {
	limit, offset = 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}
