// Package discovery resolves the L2 cache's node addresses from DNS, so a
// headless Kubernetes service can stand in for a static node list.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/platformbuilds/warden-core/pkg/logger"
)

// DNSConfig names the service whose records hold the cache nodes.
type DNSConfig struct {
	Enabled        bool
	Service        string // e.g. valkey.cache.svc.cluster.local
	Port           int    // used with A/AAAA lookups; SRV records carry their own
	RefreshSeconds int
	UseSRV         bool // query _tcp SRV records instead of A/AAAA
}

// EndpointsSink accepts an updated node list; the cache client implements it.
type EndpointsSink interface {
	ReplaceEndpoints([]string)
}

// Start resolves once immediately, then keeps the sink current on a timer
// until ctx ends.
func Start(ctx context.Context, cfg DNSConfig, sink EndpointsSink, log logger.Logger) {
	if !cfg.Enabled || sink == nil {
		return
	}
	if cfg.RefreshSeconds <= 0 {
		cfg.RefreshSeconds = 30
	}

	var last []string
	resolveAndPush := func() {
		eps := Resolve(cfg)
		if len(eps) == 0 {
			log.Warn("DNS discovery resolved no cache nodes", "service", cfg.Service)
			return
		}
		if equalEndpoints(eps, last) {
			return
		}
		last = eps
		log.Info("Cache node list changed", "service", cfg.Service, "nodes", len(eps))
		sink.ReplaceEndpoints(eps)
	}
	resolveAndPush()

	go func() {
		ticker := time.NewTicker(time.Duration(cfg.RefreshSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				resolveAndPush()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Resolve returns the current host:port list in stable order.
func Resolve(cfg DNSConfig) []string {
	var out []string
	if cfg.UseSRV {
		service := cfg.Service
		if !strings.HasPrefix(service, "_") {
			service = fmt.Sprintf("_tcp.%s", service)
		}
		_, addrs, err := net.LookupSRV("", "", service)
		if err == nil {
			for _, a := range addrs {
				host := strings.TrimSuffix(a.Target, ".")
				out = append(out, fmt.Sprintf("%s:%d", host, a.Port))
			}
		}
	} else {
		// A/AAAA records; headless services list every pod IP.
		ips, err := net.LookupIP(cfg.Service)
		if err == nil {
			for _, ip := range ips {
				out = append(out, fmt.Sprintf("%s:%d", ip.String(), cfg.Port))
			}
		}
	}

	m := map[string]struct{}{}
	uniq := make([]string, 0, len(out))
	for _, e := range out {
		if _, ok := m[e]; ok {
			continue
		}
		m[e] = struct{}{}
		uniq = append(uniq, e)
	}
	sort.Strings(uniq)
	return uniq
}

func equalEndpoints(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
