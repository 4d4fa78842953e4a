package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"Confluence/pkg/logger"
)

// Recover turns a handler panic into a 500 envelope and logs the stack.
// Nothing is written if the handler already started the response.
func Recover(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				l.Error("http handler panicked",
					logger.Error(perr),
					logger.String("method", c.Request().Method),
					logger.String("route", c.Path()),
					logger.String("symbol", c.Param("symbol")),
					logger.String("stack", string(debug.Stack())))
				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
					"data":    []map[string]string{{"code": "ERR_INTERNAL", "message": "something went wrong"}},
				})
			}()
			return next(c)
		}
	}
}
