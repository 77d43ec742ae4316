package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"

	"FxPulse/internal/domain/models"
	xhttp "FxPulse/pkg/http"
)

// classify maps a transport or status error onto the failure taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var f *models.Failure
	if errors.As(err, &f) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewFailure(models.FailureTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewFailure(models.FailureTimeout, op, err)
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return models.NewFailure(models.FailureRateLimited, op, err)
		case se.Code == http.StatusBadRequest, se.Code == http.StatusNotFound, se.Code == http.StatusUnprocessableEntity:
			return models.NewFailure(models.FailureInvalidInput, op, err)
		}
	}
	return models.NewFailure(models.FailureUpstream, op, err)
}
