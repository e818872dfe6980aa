//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"context"

	"github.com/google/wire"

	"github.com/talaub/lowzero/internal/core/world"
)

func InitializeWorld(ctx context.Context, path ConfigPath) (*world.World, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}

func InitializeApp(ctx context.Context, path ConfigPath) (*App, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
