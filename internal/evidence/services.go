package evidence

import (
	"fmt"

	"github.com/moolen/tripwire/internal/incident"
)

// ServiceDetail summarises the log health of a service.
type ServiceDetail struct {
	Service            string          `json:"service" yaml:"service"`
	Window             incident.Window `json:"window" yaml:"window"`
	ErrorCount         int             `json:"error_count" yaml:"error_count"`
	WarnCount          int             `json:"warn_count" yaml:"warn_count"`
	TopErrors          []string        `json:"top_errors" yaml:"top_errors"`
	ErrorRatePerMinute float64         `json:"error_rate_per_minute" yaml:"error_rate_per_minute"`
	Notes              []string        `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// metricServices maps scenario metrics to the service emitting them.
var metricServices = map[string]string{
	"checkout_latency_p99": "checkout-service",
	"heap_usage_mb":        "worker-service",
}

const defaultService = "api-gateway"

// ServiceFor returns the service that emits metric.
func ServiceFor(metric string) string {
	if svc, ok := metricServices[metric]; ok {
		return svc
	}
	return defaultService
}

// ServiceDetails returns the error summary of service within window.
func (c *Collector) ServiceDetails(service string, window incident.Window) ServiceDetail {
	detail := ServiceDetail{Service: service, Window: window}

	switch service {
	case "worker-service":
		detail.ErrorCount = 89
		detail.WarnCount = 143
		detail.TopErrors = []string{
			"java.lang.OutOfMemoryError: Java heap space (4 occurrences)",
			"GC overhead limit exceeded (11 occurrences)",
			"Pod OOMKilled by kubelet (4 restarts in window)",
		}
		detail.ErrorRatePerMinute = 3.2
		detail.Notes = []string{
			"heap 512 MB -> 1680 MB over 100 minutes (linear ramp, no sawtooth)",
			"GC pauses 12ms, 45ms, 340ms, 890ms, 2100ms",
			"heap grows monotonically with no release between GC cycles",
		}
	case "checkout-service":
		detail.ErrorCount = 312
		detail.WarnCount = 47
		detail.TopErrors = []string{
			"DB connection timeout after 5000ms (pool exhausted) (187 occurrences)",
			"Failed to acquire DB connection: pool_size=2, active=2, idle=0 (98 occurrences)",
			"p99 latency 2143ms breached SLA threshold of 500ms (27 occurrences)",
		}
		detail.ErrorRatePerMinute = 24.7
		detail.Notes = []string{
			"errors begin sharply at the config reload event, none in the preceding 24h",
		}
	default:
		r := newRand(c.seed, "service", service, timeKey(window.Start), timeKey(window.End))
		candidates := []string{
			fmt.Sprintf("Connection pool exhausted for %s", service),
			fmt.Sprintf("Upstream timeout from %s to postgres", service),
			fmt.Sprintf("Circuit breaker opened for %s", service),
			fmt.Sprintf("OOM event in %s pod, restarted", service),
		}
		r.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		detail.ErrorCount = between(r, 50, 300)
		detail.WarnCount = between(r, 10, 80)
		detail.TopErrors = candidates[:3]
		detail.ErrorRatePerMinute = round(5+r.Float64()*20, 2)
	}
	return detail
}
