package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"tagihin_dashboard/internal/platform"
)

// CustomErrorHandler creates a custom error handler for Echo. Platform
// client errors are translated per policy: suspension redirects to the
// dashboard where the blocking modal renders, transient failures show a
// generic retry-exhausted message, everything else shows its own message.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	// Suspension is control flow, not an error page
	if platform.IsSuspended(err) {
		_ = c.Redirect(http.StatusSeeOther, "/dashboard")
		return
	}

	code := http.StatusInternalServerError
	errorTitle := "Internal Server Error"
	errorMessage := ""

	var ne *platform.NetworkError
	var te *platform.TimeoutError
	var pe *platform.HTTPError
	var he *echo.HTTPError

	switch {
	case errors.As(err, &ne):
		code = http.StatusServiceUnavailable
		errorTitle = "Connection Problem"
		errorMessage = "Could not reach the server after several attempts. Please try again."
	case errors.As(err, &te):
		code = http.StatusGatewayTimeout
		errorTitle = "Request Timed Out"
		errorMessage = "The server took too long to respond. Please try again."
	case errors.As(err, &pe):
		code = pe.StatusCode
		errorMessage = pe.ServerMessage
	case errors.As(err, &he):
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			errorMessage = msg
		}
	}

	// Set title and default message if no custom message provided
	switch code {
	case http.StatusNotFound:
		errorTitle = "Page Not Found"
		if errorMessage == "" {
			errorMessage = "The page you're looking for doesn't exist."
		}
	case http.StatusForbidden:
		errorTitle = "Access Denied"
		if errorMessage == "" {
			errorMessage = "You don't have permission to access this resource."
		}
	case http.StatusUnauthorized:
		errorTitle = "Unauthorized"
		if errorMessage == "" {
			errorMessage = "Please log in to continue."
		}
	case http.StatusBadRequest:
		errorTitle = "Bad Request"
		if errorMessage == "" {
			errorMessage = "The request could not be processed."
		}
	default:
		if errorMessage == "" {
			errorMessage = "Something went wrong. Please try again later."
		}
	}

	c.Logger().Error(err)

	// JSON endpoints get a JSON error, pages get the error template
	if isJSONRoute(c.Request().URL.Path) {
		_ = c.JSON(code, map[string]string{"error": errorMessage})
		return
	}

	data := map[string]interface{}{
		"Title":        errorTitle,
		"ErrorTitle":   errorTitle,
		"ErrorMessage": errorMessage,
	}
	if renderErr := c.Render(code, "error.html", data); renderErr != nil {
		// Fallback to plain text if template fails
		_ = c.String(code, errorMessage)
	}
}

func isJSONRoute(path string) bool {
	return len(path) >= 8 && path[:8] == "/billing" && path != "/billing"
}
