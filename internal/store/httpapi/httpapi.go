// Package httpapi exposes the Resource Store Facade over REST/JSON, the
// same gorilla/mux + CORS-middleware shape as the teacher's
// internal/api.APIServer.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/fioncat/csync-go/internal/store"
)

// TokenIssuer authenticates a bearer password and mints/refreshes opaque
// tokens, matching spec.md's "Token (history-mode only)" entity: an
// opaque bearer string with an expiry the store refuses once stale.
type TokenIssuer interface {
	Login(password string) (token string, expiresAt time.Time, err error)
	Verify(token string) (expiresAt time.Time, ok bool)
}

// Server is the REST facade over a store.Store.
type Server struct {
	log   *slog.Logger
	store store.Store
	auth  TokenIssuer
}

func New(log *slog.Logger, st store.Store, auth TokenIssuer) *Server {
	return &Server{log: log, store: st, auth: auth}
}

// Router builds the mux.Router, wired with the same CORS-for-the-frontend
// middleware the teacher's APIServer.Start installs.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods("POST")

	protected := r.NewRoute().Subrouter()
	protected.Use(s.authMiddleware)

	protected.HandleFunc("/api/v1/metadata", s.handleList).Methods("GET")
	protected.HandleFunc("/api/v1/metadata/{id}", s.handleGetMetadata).Methods("GET")
	protected.HandleFunc("/api/v1/metadata/{id}", s.handlePatch).Methods("PATCH")
	protected.HandleFunc("/api/v1/metadata/{id}", s.handleDelete).Methods("DELETE")
	protected.HandleFunc("/api/v1/blobs", s.handleCreateBlob).Methods("POST")
	protected.HandleFunc("/api/v1/blobs/{id}", s.handleGetBlob).Methods("GET")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		expiresAt, ok := s.auth.Verify(token)
		if !ok || time.Now().After(expiresAt) {
			http.Error(w, "token expired or unknown, the store refuses stale tokens", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	token, expiresAt, err := s.auth.Login(req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(time.Until(expiresAt).Seconds()),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{
		Owner:         q.Get("owner"),
		Digest:        q.Get("digest"),
		SummarySubstr: q.Get("summary"),
	}
	if k := q.Get("kind"); k != "" {
		if ki, err := strconv.Atoi(k); err == nil {
			kind := store.Kind(ki)
			filter.Kind = &kind
		}
	}

	limit := queryInt(q, "limit", 50)
	offset := queryInt(q, "offset", 0)

	page, err := s.store.ListMetadata(r.Context(), filter, limit, offset, store.OrderPinThenRecency)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	meta, err := s.store.GetMetadata(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		Pin     *bool      `json:"pin"`
		Expires *time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	meta, err := s.store.Patch(r.Context(), id, store.Patch{Pin: body.Pin, Expires: body.Expires})
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateBlob(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	kind := store.KindText
	if k := q.Get("kind"); k != "" {
		if ki, err := strconv.Atoi(k); err == nil {
			kind = store.Kind(ki)
		}
	}

	blob := store.Blob{
		Data:     data,
		Digest:   uuid.NewString(), // random placeholder, replaced below when the request carries an X-Digest header; the facade never computes a digest from the data
		Kind:     kind,
		FileName: q.Get("file_name"),
	}
	if d := r.Header.Get("X-Digest"); d != "" {
		blob.Digest = d
	}

	meta, err := s.store.Create(r.Context(), blob, q.Get("summary"), q.Get("owner"), time.Now(), nil)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	blob, err := s.store.GetBlob(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(blob.Data)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.log.Error("store request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func queryInt(q map[string][]string, key string, def int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 {
		return def
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
