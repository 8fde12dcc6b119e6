package supervisor

// ActivationPolicy governs which activation sources are allowed to
// start an upstream, per spec §3/§4.1.
type ActivationPolicy string

const (
	// ActivationAlways starts the upstream eagerly at hub startup (and
	// whenever a dependency needs it); on-demand tool calls never start
	// it directly, since it is expected to already be running.
	ActivationAlways ActivationPolicy = "always"
	// ActivationOnDemand is the default: any source may activate.
	ActivationOnDemand ActivationPolicy = "onDemand"
	// ActivationManual only starts in response to an explicit operator
	// request; tool calls against an inactive upstream are denied.
	ActivationManual ActivationPolicy = "manual"
)

// Source identifies what triggered an activation attempt, per spec
// §4.1's activation contract.
type Source string

const (
	SourceToolCall   Source = "toolCall"
	SourceManual     Source = "manual"
	SourceStartup    Source = "startup"
	SourceDependency Source = "dependency"
)

// allowsActivation implements spec §4.1's policy gate: activate iff
// (policy=always ∧ source∈{startup,dependency}) or (policy=onDemand) or
// (policy=manual ∧ source=manual); otherwise the caller gets
// ErrActivationDenied.
func (c Config) allowsActivation(source Source) bool {
	switch c.ActivationPolicy {
	case ActivationAlways:
		return source == SourceStartup || source == SourceDependency
	case ActivationManual:
		return source == SourceManual
	default: // ActivationOnDemand, and the zero value
		return true
	}
}
