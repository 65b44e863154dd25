package proxy

import "net/http"

// hopByHopHeaders lists headers that must be removed when proxying.
// These are connection-specific headers that should not be forwarded
// between hops per HTTP/1.1 specification (RFC 7230 Section 6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// gatewayHeaders lists request headers the gateway owns or terminates at
// the boundary. Credential and identity headers are stripped so a client
// can never smuggle them past authentication; the gateway sets its own
// values afterward. Browser context headers (Origin, Referer) terminate
// here too — the backend sees the gateway, not the caller's page.
var gatewayHeaders = []string{
	"Cookie",
	"Authorization",
	"Origin",
	"Referer",
	"X-User-Email",
	"X-Admin",
	"X-Correlation-Id",
}

// CopyRequestHeaders copies headers from the inbound request to the backend
// request, excluding hop-by-hop headers and gateway-owned headers.
func CopyRequestHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopByHop(key) || isGatewayOwned(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// CopyResponseHeaders copies backend response headers to the client,
// excluding hop-by-hop headers.
func CopyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopByHop(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isHopByHop(header string) bool {
	canonical := http.CanonicalHeaderKey(header)
	for _, h := range hopByHopHeaders {
		if canonical == h {
			return true
		}
	}
	return false
}

func isGatewayOwned(header string) bool {
	canonical := http.CanonicalHeaderKey(header)
	for _, h := range gatewayHeaders {
		if canonical == h {
			return true
		}
	}
	return false
}
