// Package telemetry provides Prometheus metrics for the bot.
package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	once sync.Once

	VoiceTransitions *prometheus.CounterVec // kind=joined|left|moved
	VoiceAccruedMS   prometheus.Counter
	VoiceFailures    prometheus.Counter
	CacheLookups     *prometheus.CounterVec // result=hit|absent|miss|error
	LogLines         *prometheus.CounterVec // result=sent|skipped|failed
	Commands         *prometheus.CounterVec // outcome=ok|usage|denied|forbidden|error
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		VoiceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voicekeeper_voice_transitions_total", Help: "Voice state transitions processed, by kind"}, []string{"kind"})
		VoiceAccruedMS = promauto.NewCounter(prometheus.CounterOpts{Name: "voicekeeper_voice_accrued_milliseconds_total", Help: "Voice time accrued across all members"})
		VoiceFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "voicekeeper_voice_failures_total", Help: "Voice events dropped because the store failed"})
		CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voicekeeper_guild_cache_lookups_total", Help: "Guild cache lookups, by result"}, []string{"result"})
		LogLines = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voicekeeper_log_lines_total", Help: "Guild log lines, by result"}, []string{"result"})
		Commands = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voicekeeper_commands_total", Help: "Commands handled, by outcome"}, []string{"outcome"})
	})
}

func inc(v *prometheus.CounterVec, label string) {
	if v != nil {
		v.WithLabelValues(label).Inc()
	}
}

// ObserveTransition counts a voice transition of the given kind.
func ObserveTransition(kind string) { inc(VoiceTransitions, kind) }

// ObserveAccrual adds accrued milliseconds.
func ObserveAccrual(ms int64) {
	if VoiceAccruedMS != nil && ms > 0 {
		VoiceAccruedMS.Add(float64(ms))
	}
}

// ObserveVoiceFailure counts a dropped voice event.
func ObserveVoiceFailure() {
	if VoiceFailures != nil {
		VoiceFailures.Inc()
	}
}

// ObserveCacheLookup counts a guild cache lookup.
func ObserveCacheLookup(result string) { inc(CacheLookups, result) }

// ObserveLogLine counts a log line outcome.
func ObserveLogLine(result string) { inc(LogLines, result) }

// ObserveCommand counts a command outcome.
func ObserveCommand(outcome string) { inc(Commands, outcome) }

// RegisterDB exports connection pool statistics.
func RegisterDB(db *sql.DB, name string) error {
	return prometheus.Register(collectors.NewDBStatsCollector(db, name))
}

// RegisterQueueDepth exports the number of gateway events waiting for processing.
func RegisterQueueDepth(fn func() int) error {
	return prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "voicekeeper_event_queue_depth", Help: "Gateway events waiting for processing"},
		func() float64 { return float64(fn()) },
	))
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
