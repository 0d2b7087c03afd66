package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/server/provider"
)

const internalErrorMessage = "Internal Server Error"

// writeError maps a service error to a response. providerStatus is the code
// used for a provider verdict on this route.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, providerStatus int) {
	ctx := r.Context()

	if pe, ok := provider.AsError(err); ok {
		if pe.Unavailable() {
			s.logger.Error(ctx, "auth provider unavailable", "request_id", requestID(ctx), "error", err)
			writeMessage(w, http.StatusInternalServerError, internalErrorMessage)
			return
		}
		writeMessage(w, providerStatus, pe.Message)
		return
	}

	switch {
	case errors.Is(err, common.ErrorValidation):
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, common.ErrUsernameTaken):
		writeMessage(w, http.StatusConflict, "Username is already taken.")
	case errors.Is(err, common.ErrAccountNotFound):
		writeMessage(w, http.StatusNotFound, "User data not found")
	default:
		s.logger.Error(ctx, "request failed", "request_id", requestID(ctx), "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, internalErrorMessage)
	}
}

func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), common.ErrorValidation.Error()+": ")
}
