package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/booking-webhook/internal/booking"
	httpmiddleware "github.com/wolfman30/booking-webhook/internal/http/middleware"
	"github.com/wolfman30/booking-webhook/pkg/logging"
)

// BookingPath is where the booking form posts.
const BookingPath = "/api/book"

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	BookingHandler     *booking.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// RateLimiter guards the booking route; nil disables it.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(logger))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.BookingHandler != nil {
		r.Route(BookingPath, func(book chi.Router) {
			if cfg.RateLimiter != nil {
				book.Use(httpmiddleware.RateLimit(cfg.RateLimiter, logger))
			}
			book.Post("/", cfg.BookingHandler.Book)
			book.Options("/", cfg.BookingHandler.Preflight)
			book.MethodNotAllowed(cfg.BookingHandler.MethodNotAllowed)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
