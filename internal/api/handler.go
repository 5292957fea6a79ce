package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/credential"
	"campusattend/internal/policy"
)

const dateLayout = "2006-01-02"

// Attendance is the service behind the handlers; *attendance.Service
// satisfies it.
type Attendance interface {
	CheckIn(ctx context.Context, evt attendance.Event) (attendance.Record, error)
	CheckOut(ctx context.Context, evt attendance.Event) (attendance.Record, error)
	SetException(ctx context.Context, studentID string, date time.Time, hours float64) (attendance.Record, error)
	Monthly(ctx context.Context, studentID string, month time.Month, year int) (attendance.Summary, error)
	Semester(ctx context.Context, studentID string, from, to *time.Time) (attendance.Summary, error)
	ClassSummary(ctx context.Context, classID string, from, to time.Time) ([]attendance.Summary, error)
	Policy() policy.Policy
}

// Handler serves the attendance endpoints.
type Handler struct {
	svc  Attendance
	opts Options
}

// NewHandler creates a handler.
func NewHandler(svc Attendance, opts Options) *Handler {
	return &Handler{svc: svc, opts: opts}
}

type eventRequest struct {
	StudentID       string     `json:"studentId"`
	NFCTagID        string     `json:"nfcTagId"`
	BiometricSample string     `json:"biometricSample"` // base64
	Timestamp       *time.Time `json:"timestamp"`
}

func (r eventRequest) event() (attendance.Event, error) {
	evt := attendance.Event{
		StudentID:  r.StudentID,
		Credential: credential.Credential{NFCTagID: r.NFCTagID},
	}
	if r.BiometricSample != "" {
		sample, err := base64.StdEncoding.DecodeString(r.BiometricSample)
		if err != nil {
			return attendance.Event{}, badRequest("biometricSample must be base64")
		}
		evt.Credential.BiometricSample = sample
	}
	if r.Timestamp != nil {
		evt.Time = *r.Timestamp
	}
	return evt, nil
}

// CheckIn handles POST /v1/attendance/check-in.
func (h *Handler) CheckIn(c *gin.Context) {
	h.event(c, h.svc.CheckIn)
}

// CheckOut handles POST /v1/attendance/check-out.
func (h *Handler) CheckOut(c *gin.Context) {
	h.event(c, h.svc.CheckOut)
}

func (h *Handler) event(c *gin.Context, fn func(context.Context, attendance.Event) (attendance.Record, error)) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid request body"))
		return
	}
	evt, err := req.event()
	if err != nil {
		writeError(c, err)
		return
	}
	rec, err := fn(c.Request.Context(), evt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "record": rec})
}

// SetException handles POST /v1/attendance/exception.
func (h *Handler) SetException(c *gin.Context) {
	var req struct {
		StudentID string  `json:"studentId"`
		Date      string  `json:"date"`
		Hours     float64 `json:"hours"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid request body"))
		return
	}
	date, err := h.parseDate(req.Date, "date")
	if err != nil {
		writeError(c, err)
		return
	}
	rec, err := h.svc.SetException(c.Request.Context(), req.StudentID, date, req.Hours)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "record": rec})
}

// ClassSummary handles GET /v1/attendance/summary.
func (h *Handler) ClassSummary(c *gin.Context) {
	from, err := h.parseDate(c.Query("startDate"), "startDate")
	if err != nil {
		writeError(c, err)
		return
	}
	to, err := h.parseDate(c.Query("endDate"), "endDate")
	if err != nil {
		writeError(c, err)
		return
	}
	sums, err := h.svc.ClassSummary(c.Request.Context(), c.Query("classId"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "summary": sums})
}

// Monthly handles GET /v1/attendance/monthly.
func (h *Handler) Monthly(c *gin.Context) {
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil {
		writeError(c, badRequest("month must be a number"))
		return
	}
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		writeError(c, badRequest("year must be a number"))
		return
	}
	sum, err := h.svc.Monthly(c.Request.Context(), c.Query("studentId"), time.Month(month), year)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "summary": sum})
}

// Semester handles GET /v1/attendance/semester. start and end are optional
// but must be given together.
func (h *Handler) Semester(c *gin.Context) {
	var from, to *time.Time
	start, end := c.Query("start"), c.Query("end")
	if (start == "") != (end == "") {
		writeError(c, badRequest("start and end must be given together"))
		return
	}
	if start != "" {
		f, err := h.parseDate(start, "start")
		if err != nil {
			writeError(c, err)
			return
		}
		t, err := h.parseDate(end, "end")
		if err != nil {
			writeError(c, err)
			return
		}
		from, to = &f, &t
	}
	sum, err := h.svc.Semester(c.Request.Context(), c.Query("studentId"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "summary": sum})
}

// RegisterTerminal handles POST /v1/terminals/register.
func (h *Handler) RegisterTerminal(c *gin.Context) {
	var req struct {
		TerminalID      string `json:"terminalId" binding:"required"`
		ProvisioningKey string `json:"provisioningKey" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("terminalId and provisioningKey required"))
		return
	}
	if h.opts.Issuer == nil {
		writeKind(c, http.StatusForbidden, "Forbidden", "terminal provisioning disabled")
		return
	}
	switch err := auth.CheckProvisioningKey(req.ProvisioningKey, h.opts.ProvisioningKey); {
	case errors.Is(err, auth.ErrProvisioningOff):
		writeKind(c, http.StatusForbidden, "Forbidden", "terminal provisioning disabled")
		return
	case err != nil:
		writeKind(c, http.StatusUnauthorized, "Unauthorized", "invalid provisioning key")
		return
	}

	tokens, err := h.opts.Issuer.Issue(req.TerminalID)
	if err != nil {
		log.Printf("issue terminal token for %s: %v", req.TerminalID, err)
		writeKind(c, http.StatusInternalServerError, string(attendance.KindInternal), "token issue failed")
		return
	}
	log.Printf("terminal %s registered", req.TerminalID)
	c.JSON(http.StatusCreated, gin.H{"status": "ok", "tokens": tokens})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := gin.H{}
	for name, check := range h.opts.Checks {
		ok := check(ctx)
		checks[name] = ok
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

func (h *Handler) parseDate(v, field string) (time.Time, error) {
	if v == "" {
		return time.Time{}, badRequest(field + " required (YYYY-MM-DD)")
	}
	d, err := time.ParseInLocation(dateLayout, v, h.svc.Policy().Loc())
	if err != nil {
		return time.Time{}, badRequest(field + " must be YYYY-MM-DD")
	}
	return d, nil
}
