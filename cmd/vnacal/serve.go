package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/momentics/vnacal/internal/metrics"
	"github.com/momentics/vnacal/pkg/vnacal"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP-сервис калибровки с метриками Prometheus",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "адрес HTTP-сервера")
	addCalibrationFlags(serveCmd)
}

// calibrationService - операции сеанса, доступные через HTTP.
type calibrationService interface {
	TryCalibrate(ctx context.Context, opts vnacal.Options) (*vnacal.Run, error)
	CalSets() ([]vnacal.CalSet, error)
}

func runServe(cmd *cobra.Command, args []string) error {
	session, err := vnacal.OpenSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	rec := metrics.New(prometheus.DefaultRegisterer)
	server := &http.Server{Addr: listenAddr, Handler: newServeMux(session, rec)}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Сервер запущен на %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("ошибка HTTP сервера: %w", err)
	}
	log.Println("Сервер останавливается...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при корректном завершении сервера: %w", err)
	}
	log.Println("Сервер успешно остановлен.")
	return nil
}

func newServeMux(svc calibrationService, rec *metrics.Recorder) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/calibrate", calibrateHandler(svc, rec))
	mux.HandleFunc("/api/v1/calsets", calSetsHandler(svc))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type calibrateResponse struct {
	CalSet string  `json:"calset"`
	Port1  int     `json:"port1"`
	Port2  int     `json:"port2"`
	Points int     `json:"points"`
	Start  float64 `json:"start_hz"`
	Stop   float64 `json:"stop_hz"`
}

func calibrateHandler(svc calibrationService, rec *metrics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Требуется метод POST", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		opts := calibrationOptions()
		opts.Metrics = rec
		var err error
		if opts.Hints.Port1, err = queryPort(q.Get("port1")); err != nil {
			http.Error(w, fmt.Sprintf("Параметр 'port1': %v", err), http.StatusBadRequest)
			return
		}
		if opts.Hints.Port2, err = queryPort(q.Get("port2")); err != nil {
			http.Error(w, fmt.Sprintf("Параметр 'port2': %v", err), http.StatusBadRequest)
			return
		}
		if f := q.Get("force"); f != "" {
			if opts.Force, err = strconv.ParseBool(f); err != nil {
				http.Error(w, "Параметр 'force' должен быть true или false", http.StatusBadRequest)
				return
			}
		}

		run, err := svc.TryCalibrate(r.Context(), opts)
		switch {
		case errors.Is(err, vnacal.ErrBusy):
			http.Error(w, "Калибровка уже выполняется", http.StatusConflict)
			return
		case vnacal.IsMappingError(err):
			http.Error(w, fmt.Sprintf("Ошибка сопоставления портов: %v", err), http.StatusUnprocessableEntity)
			return
		case err != nil:
			http.Error(w, fmt.Sprintf("Ошибка калибровки: %v", err), http.StatusInternalServerError)
			return
		}

		freqs := run.Model.Frequencies
		writeJSON(w, calibrateResponse{
			CalSet: opts.CalSetName,
			Port1:  run.Mapping.Port1,
			Port2:  run.Mapping.Port2,
			Points: len(freqs),
			Start:  freqs[0],
			Stop:   freqs[len(freqs)-1],
		})
	}
}

func calSetsHandler(svc calibrationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Требуется метод GET", http.StatusMethodNotAllowed)
			return
		}
		sets, err := svc.CalSets()
		if err != nil {
			http.Error(w, fmt.Sprintf("Ошибка устройства: %v", err), http.StatusInternalServerError)
			return
		}
		type calSet struct {
			Name string `json:"name"`
			GUID string `json:"guid"`
		}
		out := make([]calSet, len(sets))
		for i, cs := range sets {
			out[i] = calSet{Name: cs.Name, GUID: cs.GUID}
		}
		writeJSON(w, out)
	}
}

// queryPort разбирает необязательный номер порта; пустая строка - 0.
func queryPort(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("некорректный номер порта %q", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ошибка записи ответа: %v", err)
	}
}
