package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// The envelope keeps the HTTP status at 200 and carries the real status
// inside, so clients read one shape for both outcomes.
func dataResponse(c echo.Context, statusCode int, data any) error {
	return c.JSON(http.StatusOK, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

func ListResponse(c echo.Context, rows any, total int64) error {
	return dataResponse(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total})
}

func SuccessResponse(c echo.Context, data any) error {
	return dataResponse(c, http.StatusOK, data)
}

// BadRequestResponse writes validation failures from ReadAndValidateRequest.
func BadRequestResponse(c echo.Context, data any) error {
	return dataResponse(c, http.StatusBadRequest, data)
}

// AppErrorResponse writes err when it is an AppError and a generic 500
// otherwise, so internal messages never reach the caller.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return dataResponse(c, appErr.Status, []*AppError{appErr})
	}
	return dataResponse(c, http.StatusInternalServerError, []*AppError{InternalError("internal error")})
}
