package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hyperboria-dev/cjdns/internal/auth"
	"github.com/hyperboria-dev/cjdns/internal/ratelimit"
)

type contextKey string

const (
	claimsContextKey    contextKey = "claims"
	requestIDContextKey contextKey = "requestID"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.responseSize += int64(size)
	return size, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// getClientIP extracts the real client IP from various headers
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if parts := strings.Split(xff, ","); len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// peerIP is the address of the connected peer. Unlike getClientIP it ignores
// forwarding headers, which the client controls.
func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		baseFields := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", getClientIP(r),
		}

		wrapper := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		func() {
			defer func() {
				if err := recover(); err != nil {
					wrapper.statusCode = http.StatusInternalServerError
					s.logger.Error("HTTP request panic recovered", append(baseFields, "panic", err)...)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next(wrapper, r)
		}()

		duration := time.Since(start)
		fields := append(baseFields,
			"status", wrapper.statusCode,
			"response_size", wrapper.responseSize,
			"duration_ms", duration.Milliseconds(),
		)

		switch {
		case wrapper.statusCode >= 500:
			s.logger.Error("HTTP request failed with server error", fields...)
		case wrapper.statusCode >= 400:
			s.logger.Warn("HTTP request failed with client error", fields...)
		case r.URL.Path == "/health":
			s.logger.Debug("HTTP request completed", fields...)
		default:
			s.logger.Info("HTTP request completed", fields...)
		}
	}
}

// requireAuth checks the bearer token when an issuer is configured.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.issuer == nil {
			next(w, r)
			return
		}

		ip := peerIP(r)
		if s.limiter != nil {
			if err := s.limiter.Check(r.Context(), ip); errors.Is(err, ratelimit.ErrTooManyFailures) {
				writeError(w, http.StatusTooManyRequests, err.Error())
				return
			} else if err != nil {
				s.logger.Warn("auth rate limit check failed", "peer_ip", ip, "error", err)
			}
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
			return
		}

		claims, err := s.issuer.Validate(parts[1])
		if err != nil {
			s.logger.Warn("admin authentication failed",
				"request_id", requestID(r),
				"client_ip", getClientIP(r),
				"peer_ip", ip,
				"path", r.URL.Path,
				"error", err,
			)
			if s.limiter != nil {
				if err := s.limiter.RecordFailure(r.Context(), ip); err != nil {
					s.logger.Warn("failed to record auth failure", "peer_ip", ip, "error", err)
				}
			}
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDContextKey).(string); ok {
		return id
	}
	return "unknown"
}

func claimsFrom(r *http.Request) *auth.Claims {
	c, _ := r.Context().Value(claimsContextKey).(*auth.Claims)
	return c
}
