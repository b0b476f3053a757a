package httpx

import (
	"net/http"

	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// RespondError maps engine errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case shared.KindCapacityExceeded:
		Problem(w, http.StatusConflict, "Capacity Exceeded", err.Error())
	case shared.KindInvalidStateTransition:
		Problem(w, http.StatusConflict, "Invalid State Transition", err.Error())
	case shared.KindScheduleConflict:
		Problem(w, http.StatusConflict, "Schedule Conflict", err.Error())
	case shared.KindAlreadyResolved:
		Problem(w, http.StatusConflict, "Already Resolved", err.Error())
	case shared.KindConflict:
		Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
