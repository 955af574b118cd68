package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/toastysunday/api/internal/order"
	"github.com/toastysunday/api/internal/payment"
	"github.com/toastysunday/api/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode JSON response")
	}
}

// requestLog tags log lines with the request ID set by chi's RequestID.
func requestLog(r *http.Request) *logrus.Entry {
	return logrus.WithField("request_id", chimw.GetReqID(r.Context()))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func isValidationError(err error) bool {
	return errors.Is(err, order.ErrEmptyOrder) ||
		errors.Is(err, order.ErrUnknownExtra) ||
		errors.Is(err, order.ErrInvalidCost) ||
		errors.Is(err, order.ErrMalformedSelection) ||
		errors.Is(err, order.ErrMalformedItems) ||
		errors.Is(err, order.ErrDuplicateExtra) ||
		errors.Is(err, service.ErrInvalidAmount) ||
		errors.Is(err, service.ErrPageOutOfRange)
}

func isConflictError(err error) bool {
	return errors.Is(err, service.ErrOrderExists) ||
		errors.Is(err, service.ErrSubmissionWindowClosed) ||
		errors.Is(err, service.ErrAmountMismatch)
}

// writeServiceError maps a service failure onto a status code and a client
// message. Provider and unexpected failures are logged and reported
// generically.
func writeServiceError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var notSucceeded *service.PaymentNotSucceededError

	switch {
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case isConflictError(err):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAlreadyPaid):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrIdentityMismatch):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &notSucceeded):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{
			"error":  service.ErrPaymentNotSucceeded.Error(),
			"status": notSucceeded.Status,
		})
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, payment.ErrIntentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, payment.ErrProvider):
		log.WithError(err).Error("payment provider failure")
		writeError(w, http.StatusBadGateway, "payment failed, try again")
	default:
		log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
