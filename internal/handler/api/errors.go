package api

import (
	"errors"
	"net/http"
	"strings"

	"RiskGate/internal/domain/models"
	xhttp "RiskGate/pkg/http"
)

// statusFor maps a pipeline error kind to the HTTP status of the response.
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindValidation:
		return http.StatusBadRequest
	case models.ErrKindIdempotency:
		return http.StatusConflict
	case models.ErrKindRiskRejection, models.ErrKindComplianceViolation, models.ErrKindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case models.ErrKindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// toAppError converts usecase errors into the response error envelope.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, models.ErrPipelineNotFound) || errors.Is(err, models.ErrTransactionNotFound) || errors.Is(err, models.ErrUserNotFound) {
		return xhttp.NotFoundError(err.Error()).WithError(err)
	}
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		e := xhttp.NewAppError("ERR_"+strings.ToUpper(string(pe.Kind)), "", pe.Reason(), statusFor(pe.Kind)).WithError(err)
		if pe.Stage != "" {
			e.WithParam("stage", pe.Stage)
		}
		if len(pe.Reasons) > 0 {
			e.WithParam("reasons", pe.Reasons)
		}
		return e
	}
	return xhttp.InternalError(err.Error()).WithError(err)
}
