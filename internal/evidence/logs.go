package evidence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/moolen/tripwire/internal/incident"
	"github.com/moolen/tripwire/internal/logging"
)

// Log levels carried by generated entries.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

const (
	// fetchCount is the number of background lines generated per Fetch.
	fetchCount = 30
	// searchCount is the number of background lines generated per service in Search.
	searchCount = 15
	// maxSearchResults caps Search.
	maxSearchResults = 20

	defaultLogCacheSize = 256
)

// Services are the services known to the log generator.
var Services = []string{"api-gateway", "auth-service", "payment-service", "checkout-service", "worker-service"}

var dependencies = []string{"postgres", "redis", "kafka", "elasticsearch"}

type logTemplate struct {
	level string
	text  string
}

var backgroundTemplates = []logTemplate{
	{LevelError, "Connection timeout after 30s"},
	{LevelWarn, "High memory usage detected (>85%)"},
	{LevelError, "Database query failed: deadlock detected"},
	{LevelInfo, "Request rate spike detected"},
	{LevelError, "Upstream dependency {dep} returned 503"},
	{LevelError, "Circuit breaker OPEN for {dep}"},
	{LevelWarn, "Response time exceeded SLA threshold"},
	{LevelError, "OOM killed, restarting container"},
	{LevelInfo, "Deployment completed for version {version}"},
	{LevelError, "Health check failed, removing from load balancer"},
}

// checkoutPoolLogs follow the config deploy that shrank the DB pool.
var checkoutPoolLogs = []logTemplate{
	{LevelError, "DB connection timeout after 5000ms (pool exhausted)"},
	{LevelError, "Failed to acquire DB connection from pool: timeout=5s exceeded"},
	{LevelError, "JDBC pool wait time 4987ms, pool_size=2, active=2, idle=0"},
	{LevelError, "Transaction rolled back, upstream postgres unreachable after 5s"},
	{LevelWarn, "DB connection pool nearly exhausted (2/2 connections in use)"},
	{LevelError, "p99 latency 2143ms breached SLA threshold of 500ms"},
	{LevelError, "Checkout request failed: DB pool timeout, returning 503 to client"},
	{LevelInfo, "Config reload triggered: db.pool.max_connections changed 20 -> 2"},
	{LevelInfo, "Config reload triggered: db.connection.timeout changed 30000ms -> 5000ms"},
	{LevelWarn, "Applied new config from checkout-service-config v2.4.1"},
}

// workerLeakLogs describe a heap that grows for the whole window.
var workerLeakLogs = []logTemplate{
	{LevelWarn, "Heap usage 650 MB, GC pressure increasing"},
	{LevelWarn, "Heap usage 820 MB, GC pause 340ms"},
	{LevelWarn, "Heap usage 1050 MB, GC pause 890ms, throughput degraded"},
	{LevelError, "Heap usage 1380 MB, Full GC triggered, STW pause 2.1s"},
	{LevelError, "Heap usage 1620 MB, GC overhead limit exceeded"},
	{LevelError, "java.lang.OutOfMemoryError: Java heap space"},
	{LevelError, "EventListenerRegistry: 48203 listeners registered, 0 removed (likely leak)"},
	{LevelWarn, "Cache eviction disabled, CacheManager holding 312k entries (no TTL set)"},
	{LevelError, "Thread pool queue depth 9842, tasks accumulating faster than processing"},
	{LevelError, "Pod OOMKilled by kubelet, restarting (restart #4 in 2h)"},
}

// LogEntry is one generated log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Level     string    `json:"level" yaml:"level"`
	Service   string    `json:"service" yaml:"service"`
	Message   string    `json:"message" yaml:"message"`
}

// String renders the entry as a single log line.
func (e LogEntry) String() string {
	return fmt.Sprintf("%s [%s] %s: %s", e.Timestamp.UTC().Format(time.RFC3339), e.Level, e.Service, e.Message)
}

// LogCacheStats reports cache effectiveness.
type LogCacheStats struct {
	Items  int
	Hits   uint64
	Misses uint64
}

// Logs fabricates service logs for a time window. Generated sets are cached
// so that repeated fetches of the same window agree with each other.
type Logs struct {
	seed   uint64
	cache  *lru.Cache[string, []LogEntry]
	logger *logging.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewLogs creates a log generator. A non-positive cacheSize uses the default.
func NewLogs(seed uint64, cacheSize int) (*Logs, error) {
	if cacheSize <= 0 {
		cacheSize = defaultLogCacheSize
	}
	cache, err := lru.New[string, []LogEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create log cache: %w", err)
	}
	return &Logs{
		seed:   seed,
		cache:  cache,
		logger: logging.GetLogger("evidence.logs"),
	}, nil
}

// Fetch returns the log entries of service within window, oldest first.
// An empty level keeps every entry; otherwise levels match case-insensitively.
func (l *Logs) Fetch(service string, window incident.Window, level string) []LogEntry {
	return filterLevel(l.generate(service, window, fetchCount), level)
}

// Search returns entries of all known services whose rendered line contains
// pattern, case-insensitively. At most 20 entries are returned.
func (l *Logs) Search(pattern string, window incident.Window) []LogEntry {
	needle := strings.ToLower(pattern)
	matches := []LogEntry{}
	for _, svc := range Services {
		for _, e := range l.generate(svc, window, searchCount) {
			if strings.Contains(strings.ToLower(e.String()), needle) {
				matches = append(matches, e)
				if len(matches) == maxSearchResults {
					return matches
				}
			}
		}
	}
	return matches
}

// Stats returns cache statistics.
func (l *Logs) Stats() LogCacheStats {
	return LogCacheStats{
		Items:  l.cache.Len(),
		Hits:   l.hits.Load(),
		Misses: l.misses.Load(),
	}
}

func (l *Logs) generate(service string, window incident.Window, count int) []LogEntry {
	key := service + "|" + timeKey(window.Start) + "|" + timeKey(window.End) + "|" + strconv.Itoa(count)
	if entries, ok := l.cache.Get(key); ok {
		l.hits.Add(1)
		return append([]LogEntry(nil), entries...)
	}
	l.misses.Add(1)

	entries := l.build(service, window, count)
	l.cache.Add(key, entries)
	l.logger.Debug("Generated %d log entries for %s", len(entries), service)
	return append([]LogEntry(nil), entries...)
}

func (l *Logs) build(service string, window incident.Window, count int) []LogEntry {
	span := window.Duration()
	entries := make([]LogEntry, 0, count+len(checkoutPoolLogs))

	switch service {
	case "worker-service":
		for i, t := range workerLeakLogs {
			offset := time.Duration(float64(span) * float64(i) / float64(len(workerLeakLogs)))
			entries = append(entries, entry(window.Start.Add(offset), service, t))
		}
	case "checkout-service":
		for i, t := range checkoutPoolLogs {
			offset := time.Duration(float64(span) * (0.5 + float64(i)*0.04))
			if limit := span - time.Second; offset > limit {
				offset = max(limit, 0)
			}
			entries = append(entries, entry(window.Start.Add(offset), service, t))
		}
	}

	r := newRand(l.seed, "logs", service, timeKey(window.Start), timeKey(window.End), strconv.Itoa(count))
	for i := 0; i < count; i++ {
		offset := time.Duration(r.Float64() * float64(span))
		t := backgroundTemplates[r.IntN(len(backgroundTemplates))]
		msg := strings.NewReplacer(
			"{dep}", dependencies[r.IntN(len(dependencies))],
			"{version}", fmt.Sprintf("v1.%d.%d", r.IntN(10), r.IntN(100)),
		).Replace(t.text)
		entries = append(entries, LogEntry{
			Timestamp: window.Start.Add(offset),
			Level:     t.level,
			Service:   service,
			Message:   msg,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}

func entry(ts time.Time, service string, t logTemplate) LogEntry {
	return LogEntry{
		Timestamp: ts,
		Level:     t.level,
		Service:   service,
		Message:   t.text,
	}
}

func filterLevel(entries []LogEntry, level string) []LogEntry {
	if level == "" {
		return entries
	}
	filtered := []LogEntry{}
	for _, e := range entries {
		if strings.EqualFold(e.Level, level) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
