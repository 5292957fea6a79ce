package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattend/internal/attendance"
)

// retryAfterSeconds is advertised on StoreUnavailable answers.
const retryAfterSeconds = "5"

var statusByKind = map[attendance.Kind]int{
	attendance.KindNotFound:           http.StatusNotFound,
	attendance.KindNotApproved:        http.StatusForbidden,
	attendance.KindInvalidCredential:  http.StatusUnauthorized,
	attendance.KindNoSessionScheduled: http.StatusUnprocessableEntity,
	attendance.KindOutsideWindow:      http.StatusUnprocessableEntity,
	attendance.KindCheckoutTooEarly:   http.StatusUnprocessableEntity,
	attendance.KindDuplicateCheckIn:   http.StatusConflict,
	attendance.KindDuplicateCheckOut:  http.StatusConflict,
	attendance.KindNoOpenSession:      http.StatusConflict,
	attendance.KindStoreUnavailable:   http.StatusServiceUnavailable,
	attendance.KindBadRequest:         http.StatusBadRequest,
	attendance.KindInternal:           http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind attendance.Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func badRequest(reason string) error {
	return &attendance.Error{Kind: attendance.KindBadRequest, Reason: reason}
}

// writeError renders err without exposing its underlying cause.
func writeError(c *gin.Context, err error) {
	kind := attendance.KindOf(err)
	if kind == attendance.KindStoreUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	reason := attendance.ReasonOf(err)
	if kind == attendance.KindInternal {
		reason = "internal error"
	}
	writeKind(c, StatusFor(kind), string(kind), reason)
}

func writeKind(c *gin.Context, code int, kind, reason string) {
	c.AbortWithStatusJSON(code, gin.H{
		"status": "error",
		"error":  gin.H{"kind": kind, "reason": reason},
	})
}
