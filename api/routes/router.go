package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/notifystore/api/controllers"
	"github.com/angelmondragon/notifystore/api/middleware"
	"github.com/angelmondragon/notifystore/pkg/config"
	"github.com/angelmondragon/notifystore/pkg/logger"
)

// NewRouter builds the ops surface of the sweeper: probes, metrics and
// notification inspection.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	gatherer prometheus.Gatherer,
	notificationsService controllers.NotificationsService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if notificationsService != nil {
		r.Route("/api/v1/notifications", func(r chi.Router) {
			r.Get("/due", controllers.ListDueNotifications(notificationsService, logg))
			r.Get("/{notificationId}", controllers.GetNotification(notificationsService, logg))
			r.Get("/{notificationId}/attempts", controllers.ListNotificationAttempts(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/{notificationId}/cancel", controllers.CancelNotification(notificationsService, logg))
		})
		r.Get("/api/v1/recipients/{recipientRef}/in-app/unread", controllers.ListUnreadInApp(notificationsService, logg))
	}

	return r
}
