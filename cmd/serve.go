package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pizza-search/internal/cache"
	"github.com/sells-group/pizza-search/internal/model"
	"github.com/sells-group/pizza-search/internal/search"
	"github.com/sells-group/pizza-search/internal/store"
)

var servePort int

// searcher is the engine surface the HTTP layer needs.
type searcher interface {
	Search(ctx context.Context, req model.SearchRequest) (*model.SearchResult, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Engine, env.Store, env.Cache),
		}

		// Graceful shutdown. ListenAndServe returns as soon as Shutdown
		// begins, so RunE must also wait for Shutdown itself to finish
		// before the deferred env.Close tears down the writer under
		// in-flight handlers.
		shutdownDone := make(chan struct{})
		go func() {
			defer close(shutdownDone)
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		<-shutdownDone

		return nil
	},
}

// newRouter builds the API surface. Split out so handler tests can run
// against the mux without a listener.
func newRouter(s searcher, st store.Store, c cache.Cache) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := st.Ping(req.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":          status,
			"cache_available": c.Available(),
		})
	})

	r.Post("/api/search/zipcode", func(w http.ResponseWriter, req *http.Request) {
		var body model.SearchRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		runSearch(w, req, s, body)
	})

	r.Get("/api/search/zipcode/{zipcode}", func(w http.ResponseWriter, req *http.Request) {
		body := model.SearchRequest{Zipcode: chi.URLParam(req, "zipcode")}
		q := req.URL.Query()
		if raw := q.Get("radius"); raw != "" {
			radius, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid radius")
				return
			}
			body.RadiusMiles = radius
		}
		// Only an explicit "false" narrows to dedicated pizzerias.
		if raw := q.Get("include_non_dedicated"); raw != "" {
			include := raw != "false"
			body.IncludeNonDedicated = &include
		}
		runSearch(w, req, s, body)
	})

	r.Route("/api/pizzerias", func(r chi.Router) {
		r.Get("/", listPizzerias(st))
		r.Post("/batch", batchImportPizzerias(st))
		r.Get("/{id}", getPizzeria(st))
	})

	return r
}

func getPizzeria(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		place, err := st.GetPlace(req.Context(), chi.URLParam(req, "id"))
		switch {
		case err != nil:
			zap.L().Error("get pizzeria failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		case place == nil:
			writeError(w, http.StatusNotFound, "pizzeria not found")
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"success":  true,
				"pizzeria": place,
			})
		}
	}
}

func listPizzerias(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit := 50
		if raw := q.Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				limit = min(v, 100)
			}
		}
		offset := 0
		if raw := q.Get("offset"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				offset = v
			}
		}

		places, total, err := st.ListPlaces(req.Context(), limit, offset)
		if err != nil {
			zap.L().Error("list pizzerias failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if places == nil {
			places = []model.Place{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"pizzerias": places,
			"pagination": map[string]int{
				"limit":  limit,
				"offset": offset,
				"total":  total,
			},
		})
	}
}

// batchImportPizzerias handles manual bulk imports. Records missing a name
// or coordinates are reported per record; the rest are upserted in one batch
// under the manual source.
func batchImportPizzerias(st store.Store) http.HandlerFunc {
	type importError struct {
		Name  string `json:"name"`
		Error string `json:"error"`
	}

	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Pizzerias []model.Place `json:"pizzerias"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.Pizzerias) == 0 {
			writeError(w, http.StatusBadRequest, "pizzerias array is required")
			return
		}

		var (
			valid      []model.Place
			importErrs []importError
		)
		for _, place := range body.Pizzerias {
			switch {
			case place.Name == "":
				importErrs = append(importErrs, importError{Name: place.Name, Error: "name is required"})
			case !place.Coordinates.Valid():
				importErrs = append(importErrs, importError{Name: place.Name, Error: "coordinates are required"})
			default:
				if place.Source == "" {
					place.Source = model.SourceManual
				}
				if place.ExternalID == "" {
					place.ExternalID = uuid.New().String()
				}
				valid = append(valid, place)
			}
		}

		imported, err := st.BulkUpsertPlaces(req.Context(), valid)
		if err != nil {
			zap.L().Error("batch import failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"imported": imported,
			"errors":   len(importErrs),
			"details":  map[string]any{"errors": importErrs},
		})
	}
}

func runSearch(w http.ResponseWriter, req *http.Request, s searcher, body model.SearchRequest) {
	result, err := s.Search(req.Context(), body)
	switch {
	case errors.Is(err, search.ErrInvalidLocation), errors.Is(err, search.ErrInvalidRadius):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		zap.L().Error("search failed", zap.String("zipcode", body.Zipcode), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
