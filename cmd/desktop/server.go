package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smarttourjo/core/cmd/desktop/handlers"
	"github.com/smarttourjo/core/internal/app"
	"github.com/smarttourjo/core/internal/logging"
)

// requestTimeout bounds every REST call except the WebSocket.
const requestTimeout = 60 * time.Second

// newRouter builds the localhost API over a wired core.
func newRouter(a *app.App, hub *WSHub) http.Handler {
	syncHandler := handlers.NewSyncHandler(a.Scheduler, a.Queue)
	offlineHandler := handlers.NewOfflineHandler(a.Engine, a.Store)
	bookingHandler := handlers.NewBookingHandler(a.Booking)
	syncHandler.SetOnlineListener(func(online bool) {
		hub.Broadcast(EventOnlineChanged, map[string]interface{}{"online": online})
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool { return isLocalOrigin(r) },
		AllowedMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:  []string{"Accept", "Content-Type"},
		MaxAge:          300,
	}))

	r.Get("/metrics", promhttp.HandlerFor(a.Engine.Metrics().Registry(), promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/ws", HandleWebSocket(hub))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": "smarttour-desktop"})
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", syncHandler.GetStatus)
			r.Post("/now", syncHandler.SyncNow)
			r.Post("/trigger", syncHandler.TriggerSync)
			r.Get("/pending", syncHandler.ListPending)
			r.Put("/online", syncHandler.SetOnline)
		})
		r.Post("/maintenance", syncHandler.RunMaintenance)

		r.Route("/offline", func(r chi.Router) {
			r.Get("/stats", offlineHandler.GetStats)
			r.Get("/available", offlineHandler.GetAvailability)
			r.Post("/download", offlineHandler.Download)
			r.Delete("/", offlineHandler.Clear)
		})

		r.Get("/destinations", offlineHandler.ListDestinations)
		r.Route("/itineraries", func(r chi.Router) {
			r.Get("/", offlineHandler.ListItineraries)
			r.Post("/", offlineHandler.CreateItinerary)
			r.Patch("/{id}", offlineHandler.UpdateItinerary)
			r.Delete("/{id}", offlineHandler.DeleteItinerary)
		})
		r.Put("/profile", offlineHandler.UpdateProfile)
		r.Get("/chat", offlineHandler.ListChat)
		r.Post("/chat", offlineHandler.SaveChat)
		r.Get("/weather", offlineHandler.GetWeather)

		r.Route("/booking", func(r chi.Router) {
			r.Get("/", bookingHandler.GetState)
			r.Delete("/", bookingHandler.Reset)
			r.Put("/step", bookingHandler.SetStep)
			r.Post("/next", bookingHandler.NextStep)
			r.Post("/previous", bookingHandler.PreviousStep)
			r.Get("/can-proceed", bookingHandler.CanProceed)
			r.Put("/trip", bookingHandler.SetTrip)
			r.Patch("/options", bookingHandler.UpdateOptions)
			r.Post("/guests", bookingHandler.AddGuest)
			r.Patch("/guests/{id}", bookingHandler.UpdateGuest)
			r.Delete("/guests/{id}", bookingHandler.RemoveGuest)
			r.Patch("/payment", bookingHandler.UpdatePayment)
			r.Post("/confirm", bookingHandler.Confirm)
		})
	})
	return r
}

// requestLogger logs each request through the core logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug("HTTP request", map[string]interface{}{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
