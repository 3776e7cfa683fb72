package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"bi-demo/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var accessDenied *domain.AccessDeniedError
	var unauthenticated *domain.UnauthenticatedError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var importErr *domain.ImportError
	var invalid validator.ValidationErrors

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unauthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &accessDenied):
		return http.StatusForbidden
	case errors.As(err, &validation), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &importErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// errorBody renders a client error the way API clients expect it. Field
// validation failures list messages per JSON field, import failures use the
// errors envelope, everything else is a plain message.
func errorBody(err error) any {
	var importErr *domain.ImportError
	if errors.As(err, &importErr) {
		return map[string]any{"errors": []map[string]any{{
			"message":    importErr.Message,
			"error_type": "GENERIC_COMMAND_ERROR",
			"level":      "warning",
			"extra":      importErr.Extra,
		}}}
	}

	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		fields := map[string][]string{}
		for _, fe := range invalid {
			fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
		}
		return map[string]any{"message": fields}
	}

	return map[string]any{"message": err.Error()}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Missing data for required field."
	case "json":
		return "Not a valid JSON string."
	case "oneof":
		return "Must be one of: " + fe.Param() + "."
	case "uuid":
		return "Not a valid UUID."
	default:
		return "Invalid value (" + fe.Tag() + ")."
	}
}
