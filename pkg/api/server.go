package api

import (
	"encoding/json"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/astromechza/decaying-canvas/pkg/canvas"
)

// Payload is the JSON body exchanged on /upload, /latest and /sync.
type Payload struct {
	Image   string `json:"image"`
	Version uint64 `json:"version,omitempty"`
}

type Server struct {
	Store         *canvas.Store
	OverlayPolicy canvas.OverlayPolicy
	MaxBody       int64
	// PushInterval is how often /sync connections check for a new version.
	PushInterval time.Duration
}

func NewServer(store *canvas.Store, policy canvas.OverlayPolicy, maxBody int64) *Server {
	return &Server{Store: store, OverlayPolicy: policy, MaxBody: maxBody, PushInterval: time.Second}
}

// Router wraps every route, including 404 and 405 responses, in request
// logging and CORS so the separately hosted front-end can call it.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Methods(http.MethodPost).Path("/upload").HandlerFunc(s.upload)
	r.Methods(http.MethodGet).Path("/latest").HandlerFunc(s.latest)
	r.Methods(http.MethodGet).Path("/sync").HandlerFunc(s.syncStore)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.healthz)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
	return logRequests(cors(r))
}

func logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, writer, request)
		slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
	})
}

func (s *Server) upload(writer http.ResponseWriter, request *http.Request) {
	var inputs Payload
	if err := json.NewDecoder(http.MaxBytesReader(writer, request.Body, s.MaxBody)).Decode(&inputs); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Error("rejecting oversized upload", "limit", tooLarge.Limit)
			writer.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		slog.Error("failed to decode body", "err", err)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	raw, err := canvas.DecodeDataURL(inputs.Image)
	if err != nil {
		s.fail(writer, err)
		return
	}
	overlay, err := s.OverlayPolicy.Decode(raw, s.Store.Width(), s.Store.Height())
	if err != nil {
		s.fail(writer, err)
		return
	}

	if err := s.Store.Update(request.Context(), func(img *image.NRGBA) error {
		canvas.Over(img, overlay)
		return nil
	}); err != nil {
		s.fail(writer, err)
		return
	}
	writer.WriteHeader(http.StatusOK)
}

func (s *Server) latest(writer http.ResponseWriter, request *http.Request) {
	raw, version, err := s.Store.Snapshot(request.Context())
	if err != nil {
		s.fail(writer, err)
		return
	}
	writeJSON(writer, Payload{Image: canvas.EncodeDataURL(raw), Version: version})
}

func (s *Server) healthz(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, map[string]interface{}{
		"version": s.Store.Version(),
		"width":   s.Store.Width(),
		"height":  s.Store.Height(),
	})
}

// fail maps canvas errors onto status codes: bad client payloads are 400,
// everything else is a server error.
func (s *Server) fail(writer http.ResponseWriter, err error) {
	var decodeErr *canvas.DecodeError
	if errors.As(err, &decodeErr) {
		slog.Error("rejecting upload", "err", err)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	slog.Error("canvas store failed", "err", err)
	writer.WriteHeader(http.StatusInternalServerError)
}

func writeJSON(writer http.ResponseWriter, v interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}
