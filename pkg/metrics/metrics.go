package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Server metrics
	ServerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aetherius_server_state",
			Help: "Current server lifecycle state (1 = active state)",
		},
		[]string{"state"},
	)

	ServerUptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aetherius_server_uptime_seconds",
			Help: "Uptime of the managed server process in seconds",
		},
	)

	ServerCPUPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aetherius_server_cpu_percent",
			Help: "CPU usage of the managed server process",
		},
	)

	ServerMemoryMiB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aetherius_server_memory_mib",
			Help: "Resident memory of the managed server process in MiB",
		},
	)

	ServerThreads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aetherius_server_threads",
			Help: "Thread count of the managed server process",
		},
	)

	// Event bus metrics
	EventsFired = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aetherius_events_fired",
			Help: "Events dispatched through the bus by topic",
		},
		[]string{"topic"},
	)

	// Component metrics
	ComponentsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aetherius_components",
			Help: "Managed components by lifecycle state",
		},
		[]string{"state"},
	)

	// Console metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aetherius_console_sessions_active",
			Help: "Connected console sessions",
		},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aetherius_commands_total",
			Help: "Console commands processed by route and result",
		},
		[]string{"route", "result"},
	)

	LogLinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aetherius_server_log_lines_total",
			Help: "Server log lines pumped through the engine",
		},
	)
)

func init() {
	prometheus.MustRegister(ServerState)
	prometheus.MustRegister(ServerUptimeSeconds)
	prometheus.MustRegister(ServerCPUPercent)
	prometheus.MustRegister(ServerMemoryMiB)
	prometheus.MustRegister(ServerThreads)
	prometheus.MustRegister(EventsFired)
	prometheus.MustRegister(ComponentsByState)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(LogLinesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
