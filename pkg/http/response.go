package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes data under the envelope with the given status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Success: statusCode < http.StatusBadRequest,
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// ListResponse writes a list response.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return DataResponse(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func CreatedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusCreated, data)
}

func AcceptedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusAccepted, data)
}

// ErrorResponse writes a failed envelope carrying msg.
func ErrorResponse(c echo.Context, statusCode int, msg string) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Error:   msg,
	})
}

// BadRequestResponse writes validation failures.
func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	msg := "invalid request"
	if len(errs) > 0 {
		msg = errs[0].Message
	}
	return c.JSON(http.StatusBadRequest, APIResponse{
		Status:  http.StatusBadRequest,
		Message: http.StatusText(http.StatusBadRequest),
		Error:   msg,
		Errors:  errs,
	})
}

func InternalServerErrorResponse(c echo.Context) error {
	return ErrorResponse(c, http.StatusInternalServerError, "something went wrong")
}

// AppErrorResponse writes an *AppError with its own status; anything else is a 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.JSON(appErr.Status, APIResponse{
			Status:  appErr.Status,
			Message: http.StatusText(appErr.Status),
			Error:   appErr.Error(),
			Errors: []ValidationError{{
				Code:    appErr.Code,
				Field:   appErr.Field,
				Message: appErr.Message,
				Params:  appErr.Params,
			}},
		})
	}
	return InternalServerErrorResponse(c)
}
