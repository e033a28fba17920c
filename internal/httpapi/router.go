// Package httpapi is the HTTP surface of BookSwap: routing, request
// marshalling, and authentication. Handlers delegate to the services and
// translate typed errors into status codes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dhaarna97/BookSwap/internal/auth"
	"github.com/dhaarna97/BookSwap/internal/metrics"
	"github.com/dhaarna97/BookSwap/internal/service/books"
	"github.com/dhaarna97/BookSwap/internal/service/users"
	"github.com/dhaarna97/BookSwap/pkg/logger"
)

// Pinger reports persistence liveness for the health endpoint. The memory
// store deployment passes nil.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config wires the API's collaborators.
type Config struct {
	Users         *users.Service
	Books         *books.Service
	Tokens        *auth.TokenManager
	DB            Pinger
	UploadDir     string
	UploadBaseURL string
	Logger        *logger.Logger
}

// API bundles the HTTP handlers.
type API struct {
	users         *users.Service
	books         *books.Service
	tokens        *auth.TokenManager
	db            Pinger
	uploadDir     string
	uploadBaseURL string
	log           *logger.Logger
}

// NewRouter builds the service router.
func NewRouter(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	a := &API{
		users:         cfg.Users,
		books:         cfg.Books,
		tokens:        cfg.Tokens,
		db:            cfg.DB,
		uploadDir:     cfg.UploadDir,
		uploadBaseURL: cfg.UploadBaseURL,
		log:           log,
	}

	r := mux.NewRouter()
	r.Use(observeMiddleware(log))

	// Operational endpoints.
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Users.
	r.HandleFunc("/user/register", a.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/user/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/user/profile", a.authenticate(a.handleProfile)).Methods(http.MethodGet)
	r.HandleFunc("/user/otp/request", a.handleRequestOTP).Methods(http.MethodPost)
	r.HandleFunc("/user/otp/verify", a.handleVerifyOTP).Methods(http.MethodPost)

	// Books. Literal paths are registered before the {id} routes so
	// "my-books" and friends never match as ids.
	r.HandleFunc("/books", a.authenticate(a.handlePostBook)).Methods(http.MethodPost)
	r.HandleFunc("/books", a.handleListBooks).Methods(http.MethodGet)
	r.HandleFunc("/books/my-books", a.authenticate(a.handleMyBooks)).Methods(http.MethodGet)
	r.HandleFunc("/books/my-requests", a.authenticate(a.handleMyRequests)).Methods(http.MethodGet)
	r.HandleFunc("/books/requests-received", a.authenticate(a.handleReceivedRequests)).Methods(http.MethodGet)
	r.HandleFunc("/books/requests/{requestId}/{action}", a.authenticate(a.handleResolveRequest)).Methods(http.MethodPut)
	r.HandleFunc("/books/requests/{requestId}", a.authenticate(a.handleCancelRequest)).Methods(http.MethodDelete)
	r.HandleFunc("/books/{id}", a.handleGetBook).Methods(http.MethodGet)
	r.HandleFunc("/books/{id}", a.authenticate(a.handleUpdateBook)).Methods(http.MethodPut)
	r.HandleFunc("/books/{id}", a.authenticate(a.handleDeleteBook)).Methods(http.MethodDelete)
	r.HandleFunc("/books/{id}/request", a.authenticate(a.handleRequestBook)).Methods(http.MethodPost)
	r.HandleFunc("/books/{id}/requests", a.authenticate(a.handleBookRequests)).Methods(http.MethodGet)

	// Uploaded images.
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	return corsMiddleware(r)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "healthy"}

	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}

	writeJSON(w, http.StatusOK, status)
}
