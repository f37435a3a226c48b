package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"cryptostats/internal/market"

	"github.com/gin-gonic/gin"
)

const (
	codeInvalidAsset = "invalid_asset"
	codeNoData       = "no_data"
	codeStorage      = "storage_error"
	codeBus          = "bus_error"
	codeUpdate       = "update_failed"
	codeLogMissing   = "log_not_found"
	codeInternal     = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// writeError maps err onto a status code and error body.
func writeError(c *gin.Context, err error) {
	status, body := classify(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, ErrorResponse) {
	var (
		verr *market.ValidationError
		nerr *market.NoDataError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Code: codeInvalidAsset}
	case errors.As(err, &nerr):
		details := nerr.Error()
		if nerr.Err != nil {
			details = nerr.Err.Error()
		}
		return http.StatusNotFound, ErrorResponse{
			Error:   fmt.Sprintf("No data available for %s. Please try again later.", nerr.Asset),
			Code:    codeNoData,
			Details: details,
		}
	case errors.Is(err, market.ErrStorage):
		return http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: codeStorage}
	case errors.Is(err, market.ErrBus):
		return http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: codeBus}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: codeInternal}
	}
}
