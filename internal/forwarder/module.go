package forwarder

import (
	"go.uber.org/fx"
)

// Module provides the forwarder module dependencies
var Module = fx.Options(
	fx.Provide(
		NewForwarder,
		fx.Annotate(
			NewCredentialAuthManager,
			fx.As(new(AuthManager)),
		),
	),
)
