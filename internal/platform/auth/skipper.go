package auth

import (
	"github.com/labstack/echo/v4"
)

// NotFoundRoute is the catch-all path for unmatched URLs. It is public so an
// unknown URL answers 404 whether or not a session is present.
const NotFoundRoute = "/*"

// publicPaths lists route paths that bypass session authentication.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/api/v1/auth/login": true,
	NotFoundRoute:        true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
// It matches the registered route path, so unknown URLs only reach the
// catch-all not-found route.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path is served without a session.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
