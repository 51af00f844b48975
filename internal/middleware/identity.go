package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	ContextKeySubject = "subject"
	ContextKeyRole    = "role"
)

// Roles recognised in the JWT "role" claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleStaff    = "STAFF"
)

// Subject returns the authenticated subject (JWT "sub"), or "" when the
// request is anonymous.
func Subject(c echo.Context) string {
	s, _ := c.Get(ContextKeySubject).(string)
	return s
}

// Role returns the authenticated role, or "" when the request is anonymous.
func Role(c echo.Context) string {
	r, _ := c.Get(ContextKeyRole).(string)
	return r
}

// currentSubject is Subject with an "anon" fallback for key building.
func currentSubject(c echo.Context) string {
	if s := Subject(c); s != "" {
		return s
	}
	return "anon"
}
