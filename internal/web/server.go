// Package web serves the query interface: a small status page, JSON
// endpoints over the measurement window and calibration controller, and
// a websocket feed of new measurements. Reads never block on a running
// calibration; they serve the latest snapshot plus a calibrating flag.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"codeberg.org/farowl/co2mond/internal/archive"
	"codeberg.org/farowl/co2mond/internal/calib"
	"codeberg.org/farowl/co2mond/internal/datalog"
	"codeberg.org/farowl/co2mond/internal/errors"
	"codeberg.org/farowl/co2mond/internal/logger"
	"codeberg.org/farowl/co2mond/internal/measure"
	"codeberg.org/farowl/co2mond/internal/notify"
)

const (
	dayLayout       = "2006-01-02"
	livePingPeriod  = 30 * time.Second
	shutdownGrace   = 2 * time.Second
	defaultStatsAge = 24 * time.Hour
)

// Calibrator is the slice of the calibration controller the handlers
// need.
type Calibrator interface {
	Request() bool
	State() calib.State
	Active() bool
}

type Server struct {
	store    *measure.Store
	log      *datalog.Log
	cal      Calibrator
	stats    archive.Collector
	bus      *notify.Bus
	plotPath string
	srv      *http.Server
	upgrader websocket.Upgrader
}

func NewServer(addr string, store *measure.Store, log *datalog.Log, cal Calibrator,
	stats archive.Collector, bus *notify.Bus, plotPath string,
) *Server {
	s := &Server{
		store:    store,
		log:      log,
		cal:      cal,
		stats:    stats,
		bus:      bus,
		plotPath: plotPath,
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Router builds the route table. Exposed for handler tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/plot.png", s.handlePlot).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/measurements", s.handleMeasurements).Methods(http.MethodGet)
	api.HandleFunc("/latest", s.handleLatest).Methods(http.MethodGet)
	api.HandleFunc("/calibrate", s.handleCalibrate).Methods(http.MethodPost)
	api.HandleFunc("/calibration", s.handleCalibration).Methods(http.MethodGet)
	api.HandleFunc("/range", s.handleRange).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/live", s.handleLive).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	logger.Info().Str("addr", s.srv.Addr).Msg("Web server listening")

	select {
	case err := <-errCh:
		return errors.Wrap(errors.ErrWebServer, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.ErrWebServer, err)
	}

	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	latest, ok := s.store.Latest()

	data := struct {
		HasReading  bool
		Latest      measure.Measurement
		Calibrating bool
		Window      string
	}{
		HasReading:  ok,
		Latest:      latest,
		Calibrating: s.cal.Active(),
		Window:      s.store.Window().String(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		logger.Error().Err(err).Msg("Status page render failed")
	}
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.plotPath)
}

func (s *Server) handleMeasurements(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.store.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"calibrating":  s.cal.Active(),
		"count":        len(snapshot),
		"measurements": snapshot,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	latest, ok := s.store.Latest()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no measurements yet"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"calibrating": s.cal.Active(),
		"measurement": latest,
	})
}

func (s *Server) handleCalibrate(w http.ResponseWriter, _ *http.Request) {
	started := s.cal.Request()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"started": started,
		"state":   s.cal.State().String(),
	})
}

func (s *Server) handleCalibration(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  s.cal.State().String(),
		"active": s.cal.Active(),
	})
}

func (s *Server) handleRange(w http.ResponseWriter, _ *http.Request) {
	first, last, ok := s.log.DataRange()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"available": false})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"available": true,
		"first":     first.Format(dayLayout),
		"last":      last.Format(dayLayout),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r.URL.Query().Get("start"), false)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid start: " + err.Error()})

		return
	}

	end := time.Now()
	if raw := r.URL.Query().Get("end"); raw != "" {
		end, err = parseTimeParam(raw, true)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid end: " + err.Error()})

			return
		}
	}

	ms, err := s.log.LoadRange(start, end)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":        len(ms),
		"measurements": ms,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-defaultStatsAge)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := parseTimeParam(raw, false)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid since: " + err.Error()})

			return
		}
		since = parsed
	}

	stats, err := s.stats.HourlyStats(r.Context(), since)
	if err != nil {
		logger.Error().Err(err).Msg("Stats query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "stats unavailable"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"hours": stats})
}

// handleLive upgrades to a websocket and pushes every new measurement
// as JSON until the client goes away.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Msg("Websocket upgrade failed")

		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	for {
		events := sub.Wait(r.Context(), livePingPeriod)
		if r.Context().Err() != nil {
			return
		}

		if events.Has(notify.MeasurementAdded) {
			latest, ok := s.store.Latest()
			if !ok {
				continue
			}
			if err := conn.WriteJSON(latest); err != nil {
				return
			}

			continue
		}

		deadline := time.Now().Add(5 * time.Second)
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			return
		}
	}
}

// parseTimeParam accepts a day ("2006-01-02") or a full timestamp. A
// bare day used as a range end covers that whole day.
func parseTimeParam(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.ParseInLocation(dayLayout, raw, time.Local); err == nil {
		if endOfDay {
			t = t.Add(24 * time.Hour)
		}

		return t, nil
	}

	return time.ParseInLocation(measure.TimeLayout, raw, time.Local)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug().Err(err).Msg("Response write failed")
	}
}
