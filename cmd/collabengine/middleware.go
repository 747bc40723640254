package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/collabengine/api/handlers"
	"github.com/BaSui01/collabengine/config"
	"github.com/BaSui01/collabengine/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Middleware 类型定义
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个位于最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// =============================================================================
// 路由模式捕获
// =============================================================================

// ServeMux 把匹配到的路由模式写入它收到的那个 *http.Request（r.Pattern）。
// 外层中间件通过 context 中的 routeInfo 拿到模式，用作 span 名与指标标签。

type routeKey struct{}

type routeInfo struct {
	pattern string
}

func (ri *routeInfo) get() string {
	if ri.pattern == "" {
		return "unmatched"
	}
	return ri.pattern
}

// withRouteInfo 返回携带 routeInfo 的请求，已存在时复用
func withRouteInfo(r *http.Request) (*http.Request, *routeInfo) {
	if ri, ok := r.Context().Value(routeKey{}).(*routeInfo); ok {
		return r, ri
	}
	ri := &routeInfo{}
	return r.WithContext(context.WithValue(r.Context(), routeKey{}, ri)), ri
}

// CaptureRoute 包在 ServeMux 外，把匹配到的路由模式回写给外层
func CaptureRoute(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if ri, ok := r.Context().Value(routeKey{}).(*routeInfo); ok {
			ri.pattern = r.Pattern
		}
	})
}

// =============================================================================
// 基础中间件
// =============================================================================

// Recovery panic 恢复中间件
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					handlers.WriteError(w, r, types.NewError(types.ErrInternalError, "internal server error"), nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 保留客户端传入的 X-Request-ID，缺省时生成，并写入 context
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
		})
	}
}

// SecurityHeaders 添加通用安全响应头
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Content-Security-Policy", "default-src 'none'")
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger 请求日志中间件
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.Int("bytes", rw.Bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if id, ok := types.RequestID(r.Context()); ok {
				fields = append(fields, zap.String("request_id", id))
			}
			logger.Info("request", fields...)
		})
	}
}

// =============================================================================
// 可观测性
// =============================================================================

// OTelTracing 为每个请求创建服务端 span，并从请求头提取上游 trace 上下文
func OTelTracing() Middleware {
	tracer := otel.Tracer("collabengine/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			req, ri := withRouteInfo(r.WithContext(ctx))
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, req)

			route := ri.get()
			if ri.pattern == "" {
				route = r.Method + " " + route
			}
			span.SetName(route)
			span.SetAttributes(
				semconv.HTTPRoute(route),
				attribute.Int("http.response.status_code", rw.StatusCode),
			)
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}
		})
	}
}

// HTTPRecorder 记录 HTTP 请求指标
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64)
}

// MetricsMiddleware 以路由模式为标签记录请求指标，避免路径参数导致标签基数膨胀
func MetricsMiddleware(recorder HTTPRecorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			req, ri := withRouteInfo(r)
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, req)

			recorder.RecordHTTPRequest(r.Method, ri.get(), rw.StatusCode, time.Since(start), int64(rw.Bytes))
		})
	}
}

// =============================================================================
// 限流
// =============================================================================

// RateLimiter 基于 IP 的令牌桶限流，ctx 结束时停止清理协程
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	type visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for ip, v := range visitors {
					if time.Since(v.lastSeen) > 3*time.Minute {
						delete(visitors, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			mu.Lock()
			v, exists := visitors[ip]
			if !exists {
				v = &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
				visitors[ip] = v
			}
			v.lastSeen = time.Now()
			mu.Unlock()

			if !v.limiter.Allow() {
				logger.Debug("rate limited", zap.String("ip", ip))
				handlers.WriteError(w, r, types.NewError(types.ErrRateLimited, "too many requests").WithRetryable(true), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 认证
// =============================================================================

// Authenticate 接受 X-API-Key 或 Authorization: Bearer <jwt>（HS256），
// 通过后将调用方写入 context。skipPaths 中的路径无需认证。
func Authenticate(cfg config.AuthConfig, skipPaths []string, logger *zap.Logger) Middleware {
	skipSet := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skipSet[p] = struct{}{}
	}
	verifyJWT := jwtVerifier(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := skipSet[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			var (
				caller string
				err    error
			)
			switch {
			case r.Header.Get("X-API-Key") != "":
				caller, err = matchAPIKey(cfg.APIKeys, r.Header.Get("X-API-Key"))
			case strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "):
				caller, err = verifyJWT(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			default:
				err = fmt.Errorf("missing credentials")
			}
			if err != nil {
				logger.Debug("authentication failed", zap.String("path", r.URL.Path), zap.Error(err))
				handlers.WriteError(w, r, types.NewError(types.ErrUnauthorized, "invalid or missing credentials"), nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(types.WithCallerID(r.Context(), caller)))
		})
	}
}

// matchAPIKey 常量时间比较，调用方标识只暴露 key 的末四位
func matchAPIKey(keys []string, presented string) (string, error) {
	for _, k := range keys {
		if k != "" && subtle.ConstantTimeCompare([]byte(k), []byte(presented)) == 1 {
			suffix := k
			if len(suffix) > 4 {
				suffix = suffix[len(suffix)-4:]
			}
			return "apikey:..." + suffix, nil
		}
	}
	return "", fmt.Errorf("unknown api key")
}

func jwtVerifier(cfg config.AuthConfig) func(token string) (string, error) {
	secret := []byte(cfg.JWTSecret)
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	parser := jwt.NewParser(opts...)

	return func(raw string) (string, error) {
		if len(secret) == 0 {
			return "", fmt.Errorf("jwt authentication not configured")
		}
		claims := &jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return secret, nil
		}); err != nil {
			return "", err
		}
		if claims.Subject == "" {
			return "", fmt.Errorf("token has no subject")
		}
		return "jwt:" + claims.Subject, nil
	}
}
