package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
)

// respondErr maps an apperr.Kind to the HTTP status spec.md §7 implies and
// writes the JSON body. Unclassified errors default to Transient, which
// apperr.KindOf already does, so this never needs a fallback branch of its
// own.
func respondErr(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.Authorization:
		status = http.StatusForbidden
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.PreconditionFailed:
		status = http.StatusPreconditionFailed
	case apperr.Transient:
		status = http.StatusServiceUnavailable
	case apperr.Fatal:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(kind)})
}
