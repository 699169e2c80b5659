package http

import "github.com/labstack/echo/v4"

// Handler is implemented by each API surface mounted on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
