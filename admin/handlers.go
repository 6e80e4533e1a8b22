package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KOMKZ/go-yogan-guard/audit"
	"github.com/KOMKZ/go-yogan-guard/breaker"
	"github.com/KOMKZ/go-yogan-guard/errcode"
	"github.com/KOMKZ/go-yogan-guard/health"
	"github.com/KOMKZ/go-yogan-guard/httpx"
	"github.com/KOMKZ/go-yogan-guard/scaling"
)

// Deps what the admin surface reads and mutates; nil members disable their routes
type Deps struct {
	Breaker    *breaker.Manager
	Scaling    *scaling.Engine
	Journal    *audit.Journal
	Dispatcher *audit.Dispatcher
	Health     *health.Aggregator
}

type handlers struct {
	deps       Deps
	auditLimit int
}

func (h *handlers) register(r gin.IRouter) {
	api := r.Group("/api")
	if h.deps.Breaker != nil {
		api.GET("/circuits", h.listCircuits)
		api.GET("/circuits/:service", httpx.Wrap(h.getCircuit))
		api.POST("/circuits/:service/reset", httpx.Wrap(h.resetCircuit))
		api.PUT("/circuits/:service/config", httpx.Wrap(h.setCircuitConfig))
	}
	if h.deps.Scaling != nil {
		api.GET("/scaling/rules", h.listRules)
		api.POST("/scaling/rules", httpx.Wrap(h.addRule))
		api.DELETE("/scaling/rules/:name", httpx.Wrap(h.removeRule))
		api.GET("/scaling/instances", h.listInstances)
		api.PUT("/scaling/instances/:service", httpx.Wrap(h.setInstances))
		api.POST("/scaling/evaluate/:service", httpx.Wrap(h.evaluate))
	}
	api.GET("/stats", h.stats)
	if h.deps.Journal != nil {
		api.GET("/audit", httpx.Wrap(h.listAudit))
	}
	if h.deps.Health != nil {
		r.GET("/health", h.health)
	}
}

func (h *handlers) listCircuits(c *gin.Context) {
	httpx.OkJson(c, h.deps.Breaker.Stats())
}

func (h *handlers) getCircuit(c *gin.Context, req *ServiceURI) (CircuitView, error) {
	snap, ok := h.deps.Breaker.State(req.Service)
	if !ok {
		return CircuitView{}, errcode.ErrNotFound.WithMsgf("circuit %q not found", req.Service)
	}
	return CircuitView{Snapshot: snap, Config: toConfigView(h.deps.Breaker.ConfigFor(req.Service))}, nil
}

func (h *handlers) resetCircuit(c *gin.Context, req *ServiceURI) (breaker.Snapshot, error) {
	if !h.deps.Breaker.Reset(c.Request.Context(), req.Service) {
		return breaker.Snapshot{}, errcode.ErrNotFound.WithMsgf("circuit %q not found", req.Service)
	}
	snap, _ := h.deps.Breaker.State(req.Service)
	return snap, nil
}

// setCircuitConfig applies to circuits not created yet as well
func (h *handlers) setCircuitConfig(c *gin.Context, req *SetConfigRequest) (ConfigView, error) {
	if err := h.deps.Breaker.SetConfig(req.Service, req.ConfigView.resource()); err != nil {
		return ConfigView{}, err
	}
	return toConfigView(h.deps.Breaker.ConfigFor(req.Service)), nil
}

func (h *handlers) listRules(c *gin.Context) {
	rules := h.deps.Scaling.Rules()
	out := make([]RuleView, 0, len(rules))
	for _, r := range rules {
		out = append(out, toRuleView(r))
	}
	httpx.OkJson(c, out)
}

func (h *handlers) addRule(c *gin.Context, req *RuleView) (RuleView, error) {
	if err := h.deps.Scaling.AddRule(req.rule()); err != nil {
		return RuleView{}, err
	}
	return *req, nil
}

func (h *handlers) removeRule(c *gin.Context, req *RuleURI) (gin.H, error) {
	if !h.deps.Scaling.RemoveRule(req.Name) {
		return nil, scaling.ErrRuleNotFound.WithData("rule", req.Name)
	}
	return gin.H{"removed": req.Name}, nil
}

func (h *handlers) listInstances(c *gin.Context) {
	httpx.OkJson(c, h.deps.Scaling.Instances())
}

func (h *handlers) setInstances(c *gin.Context, req *SetInstancesRequest) (gin.H, error) {
	if err := h.deps.Scaling.SetCurrentInstances(c.Request.Context(), req.Service, *req.Instances); err != nil {
		return nil, err
	}
	return gin.H{"service": req.Service, "instances": h.deps.Scaling.CurrentInstances(req.Service)}, nil
}

// evaluate runs one manual evaluation; effect failures are reported in the results, not as an error
func (h *handlers) evaluate(c *gin.Context, req *EvaluateRequest) (scaling.Evaluation, error) {
	return h.deps.Scaling.Evaluate(c.Request.Context(), req.Service, req.Metrics), nil
}

func (h *handlers) stats(c *gin.Context) {
	var out StatsView
	if h.deps.Breaker != nil {
		out.Breaker = h.deps.Breaker.Stats()
	}
	if h.deps.Scaling != nil {
		out.Scaling = h.deps.Scaling.Stats()
	}
	if h.deps.Dispatcher != nil {
		out.Audit = h.deps.Dispatcher.Stats()
	}
	httpx.OkJson(c, out)
}

func (h *handlers) listAudit(c *gin.Context, req *AuditQuery) ([]audit.Record, error) {
	limit := req.Limit
	if limit == 0 || limit > h.auditLimit {
		limit = h.auditLimit
	}
	return h.deps.Journal.List(audit.Filter{
		Service: req.Service,
		Kind:    audit.Kind(req.Kind),
		Limit:   limit,
	}), nil
}

// health 200 while healthy or degraded, 503 once any check fails
func (h *handlers) health(c *gin.Context) {
	resp := h.deps.Health.Check(c.Request.Context())
	status := http.StatusOK
	if !resp.IsHealthy() && !resp.IsDegraded() {
		status = http.StatusServiceUnavailable
	}
	httpx.StatusJson(c, status, resp)
}
