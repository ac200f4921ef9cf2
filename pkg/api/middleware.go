package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/resumeassist/usagegate/pkg/requestctx"
)

// requestIDMiddleware keeps a valid incoming X-Request-ID or assigns one, and
// exposes it through the request context and the response header.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := requestctx.NormalizeRequestID(req.Header.Get(requestctx.HeaderRequestID))
			c.SetRequest(req.WithContext(requestctx.SetRequestID(req.Context(), id)))
			c.Response().Header().Set(requestctx.HeaderRequestID, id)
			return next(c)
		}
	}
}

func accessLogMiddleware(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			logger.Info("request",
				zap.String("request_id", requestctx.GetRequestID(req.Context())),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
			)
			return nil
		}
	}
}

func recoverMiddleware(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						panic(r)
					}
					logger.Error("panic in handler",
						zap.String("path", c.Request().URL.Path),
						zap.String("panic", fmt.Sprint(r)),
						zap.Stack("stack"))
					err = jsonError(c, http.StatusInternalServerError, "internal error")
				}
			}()
			return next(c)
		}
	}
}

func rateLimitMiddleware(rl *RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", "1")
				return jsonError(c, http.StatusTooManyRequests, "too many requests")
			}
			return next(c)
		}
	}
}

// ipExtractor uses the connection's remote address unless trusted proxy
// ranges are configured, in which case X-Forwarded-For is walked back to the
// first untrusted hop. Ranges are validated by config.Validate.
func ipExtractor(trusted []string) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trusted {
		if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
			opts = append(opts, echo.TrustIPRange(ipNet))
		}
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
