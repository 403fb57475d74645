package tokenstore

import (
	"go.uber.org/fx"
)

// Module provides the token store dependencies
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewMemoryStore,
			fx.As(new(Store)),
		),
	),
)
