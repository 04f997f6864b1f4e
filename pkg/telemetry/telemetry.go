// Package telemetry holds the process metrics and the optional debug
// listener that exposes them.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chatdb/pkg/logger"
)

var (
	// TxnCommits counts transactions that committed successfully.
	TxnCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_txn_commits_total",
		Help: "Transactions committed.",
	})
	// TxnConflicts counts commit attempts rejected by read-set validation.
	TxnConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_txn_conflicts_total",
		Help: "Transaction commit attempts that hit a conflict.",
	})
	// TxnRetries counts executor retries of transient store errors.
	TxnRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_txn_retries_total",
		Help: "Transaction bodies re-run after a retryable store error.",
	})
	// MessagesSent counts messages written by this process.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_messages_sent_total",
		Help: "Messages written to the room log.",
	})
	// MessagesReceived counts messages delivered to the local consumer.
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_messages_received_total",
		Help: "Messages drained from the room log by the receive path.",
	})
	// WatchFires counts watch wake-ups delivered to waiters.
	WatchFires = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_watch_fires_total",
		Help: "Key watches resolved by a committed write.",
	})
)

// Handler returns the debug router: /metrics and /healthz.
func Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	return r
}

// Serve runs the debug listener on addr until ctx is cancelled. An empty
// addr disables the listener.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	srv := &http.Server{Addr: addr, Handler: Handler()}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()
	go func() {
		logger.Log.Info("telemetry_listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("telemetry_listener_failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
}
