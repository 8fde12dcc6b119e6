package registry

// Strategy is the public-name generation strategy, per spec §4.2.
type Strategy string

const (
	StrategyNamespace Strategy = "namespace"
	StrategyAlias     Strategy = "alias"
	StrategyNone      Strategy = "none"
	StrategyAliases   Strategy = "aliases"
)

// CollisionPolicy governs what happens when two upstreams would publish
// the same public name, per spec §4.2.
type CollisionPolicy string

const (
	CollisionError  CollisionPolicy = "error"
	CollisionPrefix CollisionPolicy = "prefix"
	CollisionRename CollisionPolicy = "rename"
)

// NamingConfig configures how original (per-upstream) names are turned
// into public (federated) names, and how collisions are resolved. The
// same config governs tools, resources, and prompts alike — see
// SPEC_FULL.md's "unified collision policy" decision.
type NamingConfig struct {
	Strategy        Strategy
	Separator       string
	Aliases         map[string]map[string]string // serverID -> original -> override
	CollisionPolicy CollisionPolicy
}

// DefaultNamingConfig returns the spec's defaults: namespace strategy,
// "_" separator, error collision policy.
func DefaultNamingConfig() NamingConfig {
	return NamingConfig{
		Strategy:        StrategyNamespace,
		Separator:       "_",
		CollisionPolicy: CollisionError,
	}
}

func (c NamingConfig) sep() string {
	if c.Separator == "" {
		return "_"
	}
	return c.Separator
}

// publicName computes the candidate public name for original, owned by
// serverID, under the configured strategy. It does not resolve
// collisions — callers apply collisionPolicy afterwards.
func (c NamingConfig) publicName(serverID, original string) string {
	switch c.Strategy {
	case StrategyAlias:
		return serverID + c.sep() + original
	case StrategyNone:
		return original
	case StrategyAliases:
		if m, ok := c.Aliases[serverID]; ok {
			if override, ok := m[original]; ok {
				return override
			}
		}
		return original
	default: // StrategyNamespace
		return original + c.sep() + serverID
	}
}

// namespacedFallback is the name collisionPolicy=prefix falls back to:
// always the namespace-strategy shape, regardless of the configured
// strategy.
func (c NamingConfig) namespacedFallback(serverID, original string) string {
	return original + c.sep() + serverID
}
