package tool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/retry"
	"github.com/arcflow/orchestrator/status"
)

// Broker maps tool name to capability provider and applies per-(tenant,
// tool) quotas plus a circuit breaker per tool (spec §4.4).
//
// Quota enforcement uses golang.org/x/time/rate: one token bucket per
// (tenant, tool) pair, created lazily from the tool's configured quota.
type Broker struct {
	mu sync.Mutex

	providers map[string]Provider              // tool name -> provider
	quotas    map[string]config.ToolQuotaConfig // tool name -> quota config
	limiters  map[string]*rate.Limiter          // "tenant/tool" -> limiter
	breakers  map[string]*retry.CircuitBreaker  // tool name -> breaker

	// Metrics is nil by default; callers that want the broker's quota
	// rejections and breaker trips on the Prometheus surface assign it
	// after NewBroker.
	Metrics *status.Metrics
}

// NewBroker builds an empty Broker. quotas configures the token bucket for
// each known tool name; a tool with no entry gets the ToolQuotaConfig
// defaults (10 requests/s, burst 20).
func NewBroker(quotas map[string]config.ToolQuotaConfig) *Broker {
	return &Broker{
		providers: make(map[string]Provider),
		quotas:    quotas,
		limiters:  make(map[string]*rate.Limiter),
		breakers:  make(map[string]*retry.CircuitBreaker),
	}
}

// Register adds a capability provider under tool name.
func (b *Broker) Register(name string, p Provider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers[name] = p
}

func (b *Broker) limiterFor(tenantID, toolName string) *rate.Limiter {
	key := tenantID + "/" + toolName
	if l, ok := b.limiters[key]; ok {
		return l
	}
	q := b.quotas[toolName]
	q.SetDefaults()
	l := rate.NewLimiter(rate.Limit(q.RequestsPerSecond), q.Burst)
	b.limiters[key] = l
	return l
}

func (b *Broker) breakerFor(toolName string) *retry.CircuitBreaker {
	if cb, ok := b.breakers[toolName]; ok {
		return cb
	}
	cb := retry.NewCircuitBreaker(5, 60*time.Second)
	b.breakers[toolName] = cb
	return cb
}

// Invoke dispatches req to the named tool's provider on behalf of tenantID,
// enforcing the per-(tenant,tool) quota and the tool's circuit breaker
// (spec §4.4). Returns ToolBusy (retriable) on quota rejection, and
// ToolUnavailable (fatal) when the breaker is open, when its half-open probe
// is already in flight, or when the tool is unregistered.
func (b *Broker) Invoke(ctx context.Context, tenantID, toolName string, req Request) (Response, error) {
	b.mu.Lock()
	p, ok := b.providers[toolName]
	if !ok {
		b.mu.Unlock()
		return Response{}, orcherr.New(orcherr.ToolUnavailable, "broker", "Invoke", "unknown tool "+toolName, nil)
	}
	limiter := b.limiterFor(tenantID, toolName)
	breaker := b.breakerFor(toolName)
	b.mu.Unlock()

	if err := breaker.Allow(); err != nil {
		return Response{}, err
	}

	if !limiter.Allow() {
		breaker.RecordSuccess() // quota rejection is not a provider fault
		if b.Metrics != nil {
			b.Metrics.QuotaRejected.WithLabelValues(tenantID, toolName).Inc()
		}
		return Response{}, orcherr.New(orcherr.ToolBusy, "broker", "Invoke", "quota exceeded for "+toolName, nil)
	}

	resp, err := p.Invoke(ctx, req)
	if err != nil {
		if orcherr.Retriable(err) {
			breaker.RecordSuccess() // retriable outcomes don't count toward the breaker
		} else {
			wasOpen := breaker.State() == retry.Open
			breaker.RecordFatal()
			if b.Metrics != nil && !wasOpen && breaker.State() == retry.Open {
				b.Metrics.BreakerTrips.WithLabelValues(toolName).Inc()
			}
		}
		return Response{}, err
	}

	breaker.RecordSuccess()
	return resp, nil
}
