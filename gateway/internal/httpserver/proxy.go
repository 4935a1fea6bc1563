package httpserver

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/logging"
)

const upstreamUnavailable = "upstream service unavailable"

// Route maps a public path prefix onto an upstream. Requests under From are
// forwarded with From replaced by To.
type Route struct {
	Name   string
	Target string
	From   string
	To     string
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

func rewritePrefix(p, from, to string) string {
	if from == to || !strings.HasPrefix(p, from) {
		return p
	}
	rest := strings.TrimPrefix(p, from)
	if rest != "" && !strings.HasPrefix(rest, "/") {
		return p
	}
	return to + rest
}

func newProxy(r Route, transport http.RoundTripper) (echo.HandlerFunc, error) {
	u, err := url.Parse(r.Target)
	if err != nil {
		return nil, err
	}

	p := httputil.NewSingleHostReverseProxy(u)
	p.Transport = transport

	origDirector := p.Director
	p.Director = func(req *http.Request) {
		originalHost := req.Host
		originalProto := "http"
		if req.TLS != nil {
			originalProto = "https"
		} else if xf := req.Header.Get("X-Forwarded-Proto"); xf != "" {
			originalProto = xf
		}

		req.URL.Path = rewritePrefix(req.URL.Path, r.From, r.To)
		if req.URL.RawPath != "" {
			req.URL.RawPath = rewritePrefix(req.URL.RawPath, r.From, r.To)
		}

		origDirector(req)

		if req.Header.Get("X-Forwarded-Proto") == "" {
			req.Header.Set("X-Forwarded-Proto", originalProto)
		}
		if req.Header.Get("X-Forwarded-Host") == "" && originalHost != "" {
			req.Header.Set("X-Forwarded-Host", originalHost)
		}
	}

	p.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		logging.FromContext(req.Context()).Error("upstream_failed", "upstream", r.Name, "status", http.StatusBadGateway, "error", err)
		w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(apperr.Envelope{Success: false, Message: upstreamUnavailable})
	}

	p.FlushInterval = 100 * time.Millisecond

	return func(c echo.Context) error {
		p.ServeHTTP(c.Response(), c.Request())
		return nil
	}, nil
}
