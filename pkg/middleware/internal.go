package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/henriquegoncalvesdev/credipesca/pkg/httputil"
)

// RegisterInternal mounts operator endpoints behind a CIDR allowlist:
// /metrics always and /debug/pprof/* when withPprof is true.
func RegisterInternal(r chi.Router, allowedCIDRs []string, l *slog.Logger, metrics http.Handler, withPprof bool) {
	r.Group(func(r chi.Router) {
		r.Use(IPAllowlist(allowedCIDRs, l))
		r.Method(http.MethodGet, "/metrics", metrics)
		if !withPprof {
			return
		}
		r.HandleFunc("/debug/pprof/*", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	})
}

// IPAllowlist restricts access to clients whose address falls within one of
// cidrs. Invalid entries are logged and skipped; an empty list denies everyone.
func IPAllowlist(cidrs []string, l *slog.Logger) func(http.Handler) http.Handler {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			l.Warn("invalid allowlist CIDR, skipping",
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		prefixes = append(prefixes, p.Masked())
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			addr, err := netip.ParseAddr(ip)
			if err == nil {
				addr = addr.Unmap()
				for _, p := range prefixes {
					if p.Contains(addr) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			l.Warn("access denied by IP allowlist",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			httputil.WriteError(w, r, InsufficientRole(), l)
		})
	}
}

// ClientIP returns the host part of r.RemoteAddr. Proxy headers are not
// consulted here; routers behind a trusted proxy must mount chi's RealIP
// ahead of any middleware that calls ClientIP.
func ClientIP(r *http.Request) string {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap().String()
	}
	return r.RemoteAddr
}
