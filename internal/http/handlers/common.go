package handlers

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/iago/pptx-generator-back/internal/http/middleware"
	"github.com/iago/pptx-generator-back/internal/service"
	"github.com/rs/zerolog"
)

var errInvalidPayload = errors.New("invalid payload")

const idempotencyTTL = 24 * time.Hour

type Options struct {
	// Development exposes internal error messages in 500 responses.
	Development  bool
	MaxBodyBytes int64
}

type API struct {
	jobs        *service.JobsService
	validate    *validator.Validate
	idempotency *idempotencyStore
	opts        Options
}

func NewAPI(jobs *service.JobsService, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	return &API{
		jobs:        jobs,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		idempotency: newIdempotencyStore(idempotencyTTL),
		opts:        opts,
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	middleware.WriteError(w, r, statusCode, code, message)
}

// writeInternal logs err and hides it from clients outside development.
func (api *API) writeInternal(w http.ResponseWriter, r *http.Request, message string, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Msg(message)
	if api.opts.Development {
		message = message + ": " + err.Error()
	}
	writeError(w, r, http.StatusInternalServerError, "internal_error", message)
}

func (api *API) decodeJSON(w http.ResponseWriter, r *http.Request, value any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, api.opts.MaxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

type idempotencyEntry struct {
	PayloadHash uint64
	JobID       string
	CreatedAt   time.Time
}

type idempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]idempotencyEntry
}

func newIdempotencyStore(ttl time.Duration) *idempotencyStore {
	return &idempotencyStore{
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[string]idempotencyEntry),
	}
}

// Reserve claims key for payloadHash when it is free or expired. When the key
// is already held it returns the existing entry and false; an entry with an
// empty JobID belongs to a submission that is still in flight.
func (s *idempotencyStore) Reserve(key string, payloadHash uint64) (idempotencyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for existing, entry := range s.entries {
		if now.Sub(entry.CreatedAt) > s.ttl {
			delete(s.entries, existing)
		}
	}
	if entry, ok := s.entries[key]; ok {
		return entry, false
	}
	entry := idempotencyEntry{PayloadHash: payloadHash, CreatedAt: now}
	s.entries[key] = entry
	return entry, true
}

// Complete binds a reserved key to the job its submission created.
func (s *idempotencyStore) Complete(key string, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok {
		entry.JobID = jobID
		s.entries[key] = entry
	}
}

// Release frees key if it still points at jobID. An empty jobID releases an
// in-flight reservation after its submission failed.
func (s *idempotencyStore) Release(key string, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok && entry.JobID == jobID {
		delete(s.entries, key)
	}
}

func hashPayload(value any) uint64 {
	payload, _ := json.Marshal(value)
	hasher := fnv.New64a()
	_, _ = hasher.Write(payload)
	return hasher.Sum64()
}
