// Package metrics provides observability hooks for the HQ state manager.
//
// Components receive a Recorder through constructor injection and default to
// NoopRecorder, so metrics never need nil checks at call sites:
//
//	mgr := state.NewManager(deps)             // NoopRecorder
//	mgr := state.NewManager(deps.WithMetrics(metrics.NewPrometheusRecorder(reg)))
//
// PrometheusRecorder registers its collectors on the given registry and
// HTTPHandler exposes that registry for scraping from the admin API.
package metrics
