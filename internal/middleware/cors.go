package middleware

import "github.com/labstack/echo/v4"

// corsHeaders are set on every response, including rejections, so browser
// clients can read error bodies.
var corsHeaders = [][2]string{
	{echo.HeaderAccessControlAllowOrigin, "*"},
	{echo.HeaderAccessControlAllowMethods, "GET, OPTIONS"},
	{echo.HeaderAccessControlAllowHeaders, "DNT,X-CustomHeader,Keep-Alive,User-Agent,X-Requested-With,If-Modified-Since,Cache-Control,Content-Type,Range"},
	{echo.HeaderAccessControlExposeHeaders, "Content-Length,Content-Range"},
}

// CORS returns an Echo middleware that sets a fixed, permissive set of CORS
// headers on every response. OPTIONS requests are not short-circuited; they
// go through routing like any other method.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range corsHeaders {
				h.Set(kv[0], kv[1])
			}
			return next(c)
		}
	}
}
