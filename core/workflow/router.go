package workflow

import "github.com/cordum/mediaflow/core/infra/logging"

const (
	defaultRouteName   = "default"
	defaultRouteAction = "none"
)

// SmartRouter selects the first route rule whose expression holds.
type SmartRouter struct{}

func NewSmartRouter() *SmartRouter {
	return &SmartRouter{}
}

// DetermineRoute walks rules in order. Expression errors count as a non-match;
// no match yields the neutral default route.
func (r *SmartRouter) DetermineRoute(vars map[string]any, rules []RouteRule) Route {
	for i, rule := range rules {
		ok, err := EvalBool(rule.Condition, vars)
		if err != nil {
			logging.Debug("workflow-router", "route expression rejected", "rule", rule.Name, "index", i, "error", err)
			continue
		}
		if !ok {
			continue
		}
		cfg := cloneMap(rule.Config)
		if cfg == nil {
			cfg = map[string]any{}
		}
		name := rule.Name
		if name == "" {
			name = rule.Action
		}
		return Route{Name: name, Action: rule.Action, Config: cfg, Index: i}
	}
	return Route{Name: defaultRouteName, Action: defaultRouteAction, Config: map[string]any{}, Index: -1}
}
