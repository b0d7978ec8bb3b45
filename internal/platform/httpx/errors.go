package httpx

import (
	"errors"
	"net/http"

	"github.com/helios-sis/helios-sis/internal/shared"
)

// RespondError maps domain sentinel errors onto RFC7807 responses. Anything
// unmapped becomes an opaque 500; callers log before handing the error over.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthenticated", "invalid email or password")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
