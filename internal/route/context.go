package route

import "context"

type contextKey struct{}

var ruleKey contextKey

// ContextWithRule attaches the resolved rule to the context.
func ContextWithRule(ctx context.Context, rule *Rule) context.Context {
	return context.WithValue(ctx, ruleKey, rule)
}

// RuleFromContext returns the resolved rule, or nil when resolution has
// not run for this request.
func RuleFromContext(ctx context.Context) *Rule {
	rule, _ := ctx.Value(ruleKey).(*Rule)
	return rule
}
