package middleware

import (
	"context"
	"net"
	"net/http"
)

const requestInfoKey contextKey = "request_info"

// RequestInfo is the client metadata recorded on audit events.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

// CaptureRequestInfo stores the client address and user agent in the
// request context. Run it after chi's RealIP.
func CaptureRequestInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		ctx := context.WithValue(r.Context(), requestInfoKey, RequestInfo{IPAddress: ip, UserAgent: r.UserAgent()})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestInfo(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey).(RequestInfo)
	return info, ok
}
