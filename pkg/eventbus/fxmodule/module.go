// Package fxmodule wires an event bus into a go.uber.org/fx application.
//
// The application supplies the *eventbus.Hierarchy; settings, logger and a
// failure store are optional:
//
//	app := fx.New(
//	    fx.Supply(hierarchy),
//	    fxmodule.Module(),
//	    fx.Invoke(func(bus *eventbus.Bus) { ... }),
//	)
//
// When no failures.Store is supplied and the settings name one, the module
// opens it and closes it on stop.
package fxmodule

import (
	"context"
	"log/slog"
	"os"

	"go.uber.org/fx"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
	"github.com/randalmurphal/eventbus/pkg/eventbus/failures"
)

// Module returns the fx module providing *eventbus.Bus.
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideBus),
	)
}

// Params are the inputs of ProvideBus.
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Hierarchy *eventbus.Hierarchy
	Settings  *config.Settings `optional:"true"`
	Logger    *slog.Logger     `optional:"true"`
	Store     failures.Store   `optional:"true"`
}

// ProvideBus builds a bus from p. Without Settings it uses
// config.DefaultSettings with environment overrides applied.
func ProvideBus(p Params) (*eventbus.Bus, error) {
	var s config.Settings
	if p.Settings != nil {
		s = *p.Settings
	} else {
		s = config.DefaultSettings()
		if err := s.ApplyEnv(); err != nil {
			return nil, err
		}
	}

	opts, err := s.Options()
	if err != nil {
		return nil, err
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: s.Level()}))
	}
	opts = append(opts, eventbus.WithLogger(logger))

	store := p.Store
	if store == nil {
		owned, err := s.OpenFailureStore()
		if err != nil {
			return nil, err
		}
		if owned != nil {
			store = owned
			p.Lifecycle.Append(fx.Hook{
				OnStop: func(context.Context) error {
					return owned.Close()
				},
			})
		}
	}
	if store != nil {
		opts = append(opts, eventbus.WithFailureStore(store))
	}

	bus, err := eventbus.New(p.Hierarchy, opts...)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			stats := bus.Stats()
			logger.Info("event bus stopped",
				slog.Int("listeners", stats.Listeners),
				slog.Uint64("fires", stats.Fires),
				slog.Uint64("listener_failures", stats.ListenerFailures),
			)
			return nil
		},
	})
	return bus, nil
}
