package cookies

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	AccessName  = "auth-token"
	RefreshName = "refresh-token"

	AccessMaxAge  = 15 * time.Minute
	RefreshMaxAge = 7 * 24 * time.Hour
)

// Policy decides cookie attributes: secure and SameSite=Strict in production,
// Lax in development.
type Policy struct {
	Production bool
}

func (p Policy) sameSite() http.SameSite {
	if p.Production {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

func (p Policy) CreateCookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: true,
		Secure:   p.Production,
		SameSite: p.sameSite(),
	}
}

func (p Policy) DeleteCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Production,
		SameSite: p.sameSite(),
	}
}

func (p Policy) SetAuth(c echo.Context, accessToken, refreshToken string) {
	c.SetCookie(p.CreateCookie(AccessName, accessToken, AccessMaxAge))
	if refreshToken != "" {
		c.SetCookie(p.CreateCookie(RefreshName, refreshToken, RefreshMaxAge))
	}
}

func (p Policy) Clear(c echo.Context) {
	c.SetCookie(p.DeleteCookie(AccessName))
	c.SetCookie(p.DeleteCookie(RefreshName))
}

func AccessToken(r *http.Request) string {
	return read(r, AccessName)
}

func RefreshToken(r *http.Request) string {
	return read(r, RefreshName)
}

func read(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
