/*
Package config loads event bus settings from files and the environment.

# Overview

Config wraps a decoded YAML or JSON document and provides typed accessors
that return a default for missing keys or mismatched types. Settings is the
typed view of the "eventbus" section:

	eventbus:
	  cache_size: 1024
	  async_failure_policy: skip
	  metrics: true
	  failure_store: sqlite:/var/lib/app/failures.db
	  log_level: debug

# Loading

LoadSettings reads the file, applies EVENTBUS_* environment overrides and
validates the result:

	s, err := config.LoadSettings("app.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	opts, err := s.Options()
	store, err := s.OpenFailureStore()
	if store != nil {
	    defer store.Close()
	    opts = append(opts, eventbus.WithFailureStore(store))
	}
	bus, err := eventbus.New(h, opts...)

Environment variables: EVENTBUS_CACHE_SIZE, EVENTBUS_ASYNC_FAILURE_POLICY,
EVENTBUS_METRICS, EVENTBUS_TRACING, EVENTBUS_FAILURE_STORE and
EVENTBUS_LOG_LEVEL.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
