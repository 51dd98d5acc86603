package catalogue

import (
	"context"

	"github.com/loki-oidc/loki-splice/pkg/plugins"
)

func asResponseContext(mc plugins.Context) (plugins.ResponseContext, bool) {
	rc, ok := mc.(plugins.ResponseContext)
	return rc, ok
}

// LatencyInjection delays the response by a configured number of
// milliseconds, to probe client/proxy timeout handling.
var LatencyInjection = plugins.Descriptor{
	ID:          "latency-injection",
	Name:        "Latency Injection",
	Description: "Delays delivery of the response by a configured duration.",
	Severity:    plugins.SeverityLow,
	Phase:       plugins.PhaseResponse,
	Spec: plugins.SpecRef{
		Description: "Exercises timeout and retry handling under a slow identity provider.",
	},
	Apply: func(ctx context.Context, mc plugins.Context) plugins.Result {
		rc, ok := asResponseContext(mc)
		if !ok {
			return notApplied()
		}
		ms := configInt(rc.Config(), "delay_ms", 2000)
		if err := rc.Response.Delay(ctx, ms); err != nil {
			return notApplied()
		}
		return result(true, "delayed response", map[string]any{"delay_ms": ms})
	},
}

// ResponsePlugins are all response-phase plugins, in declared order.
var ResponsePlugins = []plugins.Descriptor{
	LatencyInjection,
}
