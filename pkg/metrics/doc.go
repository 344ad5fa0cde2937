/*
Package metrics exposes the engine's Prometheus metrics.

Gauges describing the supervised server, the event bus and the component
registry are sampled by the Collector on a 15 second timer; counters
(console commands, pumped log lines, active sessions) are maintained
inline by the daemon. Handler() serves the standard /metrics endpoint;
the daemon mounts it when a metrics address is configured.
*/
package metrics
