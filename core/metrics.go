package core

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the identity counters exposed on /metrics. A dedicated
// registry keeps repeated router construction (tests) from colliding with
// the global one.
type Metrics struct {
	registry *prometheus.Registry

	LoginAttempts    *prometheus.CounterVec
	RecoveryRequests prometheus.Counter
	PasswordResets   prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soundrate_login_attempts_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		RecoveryRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "soundrate_recovery_requests_total",
			Help: "Account recovery emails issued.",
		}),
		PasswordResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "soundrate_password_resets_total",
			Help: "Passwords reset through a recovery token.",
		}),
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
