package transport

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"

	"go.uber.org/zap"
)

// respondWithServiceError maps a service error onto the JSON error envelope.
// Unknown errors are logged and reported as a generic 500.
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		validationErr *domain.ValidationError
		stockErr      *domain.StockError
	)

	switch {
	case errors.As(err, &validationErr):
		middleware.RespondWithValidationErrors(w, []middleware.ValidationError{
			{Field: validationErr.Field, Message: validationErr.Message},
		})

	case errors.As(err, &stockErr):
		middleware.RespondWithErrorDetails(w, http.StatusBadRequest, stockErr.Error(), map[string]interface{}{
			"product_id":   stockErr.ProductID.String(),
			"product_name": stockErr.ProductName,
			"available":    stockErr.Available,
			"requested":    stockErr.Requested,
		})

	case errors.Is(err, domain.ErrEmptyCart):
		middleware.RespondWithError(w, http.StatusBadRequest, "Cart is empty")

	case errors.Is(err, domain.ErrNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, domain.ErrPermissionDenied):
		middleware.RespondWithError(w, http.StatusForbidden, "You do not have permission to perform this action.")

	case errors.Is(err, domain.ErrUnauthenticated):
		middleware.RespondWithError(w, http.StatusUnauthorized, "authentication required")

	default:
		logger.Error("Request failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondWithDecodeError reports a malformed or invalid request body
func respondWithDecodeError(w http.ResponseWriter, err error) {
	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return
	}

	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
}
