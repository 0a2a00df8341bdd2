// Package telemetry carries performance and memory-pressure notifications
// from the stage components to the host.
//
// A Hub fans events out to subscribed listeners. Metrics turns the same
// events, plus scrape-time reads of component statistics, into Prometheus
// collectors registered on a caller-supplied registry.
package telemetry
