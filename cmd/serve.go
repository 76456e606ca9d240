package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/monitoring"
	"github.com/deeplydigital/pole-burndown/internal/report"
)

var servePort int

// apiSource is the read side of the store used by the HTTP API.
type apiSource interface {
	report.Source
	CountDLQ(ctx context.Context) (int, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve burndown records and weekly status over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(st, cfg.Server.CORSOrigins, time.Now),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if cfg.Monitor.Enabled {
			checker := monitoring.NewChecker(monitoring.NewCollector(st, nil),
				monitoring.NewAlerter(cfg.Monitor), cfg.Monitor)
			go checker.Run(ctx)
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// buildRouter mounts the read-only API. now anchors default date windows.
func buildRouter(src apiSource, origins []string, now func() time.Time) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/burndown", func(w http.ResponseWriter, r *http.Request) {
		start, end, err := queryWindow(r, now(), 7)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		records, err := src.ListBurndown(r.Context(), start, end)
		if err != nil {
			zap.L().Error("serve: list burndown", zap.Error(err))
			writeError(w, http.StatusInternalServerError, eris.New("list burndown failed"))
			return
		}
		if typ := r.URL.Query().Get("type"); typ != "" {
			records = filterType(records, model.EntityType(typ))
		}
		if records == nil {
			records = []model.BurndownRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	})

	r.Get("/burndown/{entity}", func(w http.ResponseWriter, r *http.Request) {
		start, end, err := queryWindow(r, now(), 30)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		records, err := src.ListBurndown(r.Context(), start, end)
		if err != nil {
			zap.L().Error("serve: list burndown", zap.Error(err))
			writeError(w, http.StatusInternalServerError, eris.New("list burndown failed"))
			return
		}
		entity := chi.URLParam(r, "entity")
		out := []model.BurndownRecord{}
		for _, rec := range records {
			if rec.Entity == entity {
				out = append(out, rec)
			}
		}
		if len(out) == 0 {
			writeError(w, http.StatusNotFound, eris.Errorf("no records for %s", entity))
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/weekly", func(w http.ResponseWriter, r *http.Request) {
		start, end, err := queryWindow(r, now(), 7)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ws, err := report.NewAssembler(src).Assemble(r.Context(), start, end)
		if err != nil {
			zap.L().Error("serve: assemble weekly", zap.Error(err))
			writeError(w, http.StatusInternalServerError, eris.New("assemble weekly failed"))
			return
		}
		writeJSON(w, http.StatusOK, ws)
	})

	r.Get("/dlq", func(w http.ResponseWriter, r *http.Request) {
		n, err := src.CountDLQ(r.Context())
		if err != nil {
			zap.L().Error("serve: count dlq", zap.Error(err))
			writeError(w, http.StatusInternalServerError, eris.New("count dlq failed"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"queued": n})
	})

	return r
}

// queryWindow reads start and end (YYYY-MM-DD, end inclusive) from the query
// string. Without start the window is the last days days ending today.
func queryWindow(r *http.Request, now time.Time, days int) (time.Time, time.Time, error) {
	q := r.URL.Query()
	today := now.UTC().Truncate(24 * time.Hour)

	end := today
	if s := q.Get("end"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}
	start := end.AddDate(0, 0, -(days - 1))
	if s := q.Get("start"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, eris.New("end is before start")
	}
	return start, end.AddDate(0, 0, 1), nil
}

func filterType(records []model.BurndownRecord, typ model.EntityType) []model.BurndownRecord {
	var out []model.BurndownRecord
	for _, r := range records {
		if r.EntityType == typ {
			out = append(out, r)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
