package webhook

import "go.uber.org/fx"

// Module provides the webhook receiver dependencies
var Module = fx.Module("webhook",
	fx.Provide(
		NewReceiver,
	),
)
