package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"faceattend/internal/apperrors"
	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/employee"
	"faceattend/internal/metrics"
	"faceattend/internal/photodir"
)

// Reconciler runs the photo-directory consistency check.
type Reconciler func(c *gin.Context) (photodir.Report, error)

// DeviceStore persists kiosk devices and their refresh tokens.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, deviceID string) error
	SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, token string) (bool, error)
}

// Handler wires the HTTP surface to the services.
type Handler struct {
	cfg        config.App
	employees  *employee.Service
	scans      *attendance.Service
	reports    *attendance.Repository
	authRepo   DeviceStore
	reconciler Reconciler
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// New creates a handler.
func New(cfg config.App, employees *employee.Service, scans *attendance.Service, reports *attendance.Repository, authRepo DeviceStore, reconciler Reconciler, m *metrics.Metrics, log zerolog.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		employees:  employees,
		scans:      scans,
		reports:    reports,
		authRepo:   authRepo,
		reconciler: reconciler,
		metrics:    m,
		log:        log,
	}
}

// Routes registers all endpoints.
func (h *Handler) Routes(r *gin.Engine) {
	r.POST("/v1/devices/register", h.DeviceRegister)
	r.POST("/v1/devices/refresh", h.DeviceRefresh)
	r.POST("/v1/admin/token", h.AdminToken)

	kiosk := r.Group("", auth.Require(h.cfg.JWTSigningKey, h.cfg.JWTIssuer, auth.RoleDevice, auth.RoleAdmin))
	kiosk.POST("/register", h.Register)
	kiosk.POST("/attendance", h.Attendance)

	admin := r.Group("/admin", auth.Require(h.cfg.JWTSigningKey, h.cfg.JWTIssuer, auth.RoleAdmin))
	admin.GET("/attendance", h.AdminAttendance)
	admin.GET("/report.pdf", h.AdminReportPDF)
	admin.GET("/employees", h.AdminEmployees)
	admin.GET("/reconcile", h.AdminReconcile)
}

// ---------- Registration ----------

type registerRequest struct {
	EmployeeID string `form:"employee_id" binding:"required"`
	FullName   string `form:"full_name" binding:"required"`
	Program    string `form:"program"`
}

// Register enrolls an employee from a multipart form with fields
// employee_id, full_name, program and a photo file.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		h.metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		h.metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		h.metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read photo"})
		return
	}

	emp, err := h.employees.Register(c.Request.Context(), employee.RegisterInput{
		EmployeeID: req.EmployeeID,
		FullName:   req.FullName,
		Program:    req.Program,
		Image:      image,
	})
	if err != nil {
		h.metrics.RegistrationsTotal.WithLabelValues(outcomeFor(err)).Inc()
		h.fail(c, err, "registration failed")
		return
	}

	h.metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	c.JSON(http.StatusCreated, emp)
}

// ---------- Attendance ----------

type attendanceRequest struct {
	Image string `json:"image" binding:"required"`
}

// Attendance identifies the snapshot and records a check-in/check-out.
// The body carries a base64 data-URL image from the kiosk camera.
func (h *Handler) Attendance(c *gin.Context) {
	start := time.Now()
	defer func() { h.metrics.ScanDuration.Observe(time.Since(start).Seconds()) }()

	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.ScansTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	image, err := decodeDataURL(req.Image)
	if err != nil {
		h.metrics.ScansTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "image decode failed"})
		return
	}

	result, err := h.scans.Scan(c.Request.Context(), image)
	if err != nil {
		h.metrics.ScansTotal.WithLabelValues(outcomeFor(err)).Inc()
		h.fail(c, err, "scan failed")
		return
	}

	h.metrics.ScansTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	c.JSON(http.StatusOK, result)
}

// ---------- Helpers ----------

// fail translates service errors into responses; unexpected errors are logged
// and masked.
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrNoFace):
		return metrics.OutcomeNoFace
	case errors.Is(err, apperrors.ErrNotRecognized):
		return metrics.OutcomeNotRecognized
	case errors.Is(err, apperrors.ErrInvalid):
		return metrics.OutcomeInvalid
	case errors.Is(err, apperrors.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, apperrors.ErrNotFound):
		return metrics.OutcomeNotRecognized
	default:
		return metrics.OutcomeError
	}
}

// decodeDataURL accepts "data:image/jpeg;base64,..." or bare base64.
func decodeDataURL(s string) ([]byte, error) {
	if idx := strings.Index(s, ","); idx >= 0 && strings.HasPrefix(s, "data:") {
		s = s[idx+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}
