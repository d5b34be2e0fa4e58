package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/okats/boardroom/model"
	"github.com/okats/boardroom/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	boardmetrics "github.com/okats/boardroom/metrics"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultAuthRateLimit = rate.Limit(5)
	defaultAuthBurst     = 10
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type ctxKey int

const identityKey ctxKey = iota

type (
	// Directory is the account and room-directory persistence the API sits on.
	Directory interface {
		CreateUser(ctx context.Context, username, passwordHash string) (model.Account, error)
		UserByUsername(ctx context.Context, username string) (model.Account, error)
		CreateRoom(ctx context.Context, name, createdBy string) (model.RoomRecord, error)
		ListRooms(ctx context.Context) ([]model.RoomRecord, error)
	}

	// Credentials resolves and issues bearer credentials.
	Credentials interface {
		Resolve(credential string) (model.UserIdentity, error)
		Issue(identity model.UserIdentity) (string, error)
	}

	Config struct {
		Logger      *zerolog.Logger
		Directory   Directory
		Credentials Credentials
		Gatherer    prometheus.Gatherer
		ListenAddr  string
	}

	Server struct {
		logger zerolog.Logger
		dir    Directory
		creds  Credentials
		*http.Server
	}
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createRoomRequest struct {
	Name string `json:"name"`
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		dir:    cfg.Directory,
		creds:  cfg.Credentials,
	}

	limiter := newIPRateLimiter(defaultAuthRateLimit, defaultAuthBurst)

	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(limiter.middleware)
		r.Post("/register", srv.register)
		r.Post("/login", srv.login)
		r.With(srv.authenticated).Get("/current", srv.current)
	})
	r.Route("/api/rooms", func(r chi.Router) {
		r.Use(srv.authenticated)
		r.Post("/create", srv.createRoom)
		r.Get("/list", srv.listRooms)
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", boardmetrics.Handler(cfg.Gatherer))
	}

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticated resolves the Authorization header and stashes the identity in
// the request context.
func (srv *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := srv.creds.Resolve(r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, &GenericResponse{Error: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func identityFrom(r *http.Request) model.UserIdentity {
	identity, _ := r.Context().Value(identityKey).(model.UserIdentity)
	return identity
}

func (srv *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "username and password are required"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to hash password")
		writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "server error"})
		return
	}

	acc, err := srv.dir.CreateUser(r.Context(), req.Username, string(hash))
	if errors.Is(err, sqlite.ErrUsernameTaken) {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "username already taken"})
		return
	}
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to create user")
		writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "server error"})
		return
	}

	srv.logger.Debug().Str("userID", acc.ID).Str("username", acc.Username).Msg("user registered")
	writeJSON(w, http.StatusCreated, &GenericResponse{Message: "user registered"})
}

func (srv *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "username and password are required"})
		return
	}

	acc, err := srv.dir.UserByUsername(r.Context(), req.Username)
	if errors.Is(err, sqlite.ErrUserNotFound) {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "invalid username or password"})
		return
	}
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to fetch user")
		writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "server error"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)) != nil {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "invalid username or password"})
		return
	}

	token, err := srv.creds.Issue(model.UserIdentity{ID: acc.ID, Name: acc.Username})
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to issue credential")
		writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "server error"})
		return
	}

	srv.logger.Debug().Str("userID", acc.ID).Msg("user logged in")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (srv *Server) current(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identityFrom(r))
}

func (srv *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "room name is required"})
		return
	}

	rec, err := srv.dir.CreateRoom(r.Context(), req.Name, identityFrom(r).ID)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to create room")
		writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "server error"})
		return
	}

	srv.logger.Debug().Str("roomID", rec.RoomID).Str("name", rec.Name).Msg("room created")
	writeJSON(w, http.StatusCreated, rec)
}

func (srv *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := srv.dir.ListRooms(r.Context())
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to list rooms")
		writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "server error"})
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
