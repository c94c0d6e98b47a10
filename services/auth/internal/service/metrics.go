package service

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/henriquegoncalvesdev/credipesca/pkg/errors"
)

// Operation labels for auth_operations_total.
const (
	opRegister       = "register"
	opLogin          = "login"
	opRefresh        = "refresh"
	opLogout         = "logout"
	opForgotPassword = "forgot_password"
	opResetPassword  = "reset_password"
	opChangePassword = "change_password"
	opSetUserActive  = "set_user_active"
)

const outcomeSuccess = "success"

var authOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Total number of auth operations by outcome",
	},
	[]string{"operation", "outcome"},
)

// outcome maps err to a bounded label: "success", the lower-cased AppError
// code, or "internal_error".
func outcome(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status < 500 {
		return strings.ToLower(appErr.Code)
	}
	return "internal_error"
}

func observe(operation string, err error) {
	authOperations.WithLabelValues(operation, outcome(err)).Inc()
}
