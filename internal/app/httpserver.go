package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type HTTPServer struct {
	srv  *http.Server
	done chan error
}

// StartHTTP serves handler on addr until ctx is cancelled, then shuts down gracefully.
func StartHTTP(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) *HTTPServer {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	h := &HTTPServer{srv: srv, done: make(chan error, 1)}

	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.done <- err
		}
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// закрываем аккуратно: дожидаемся активных запросов
		err := srv.Shutdown(shCtx)
		select {
		case h.done <- err:
		default:
		}
	}()

	return h
}

// Wait blocks until the server fails to listen or finishes its graceful shutdown.
func (h *HTTPServer) Wait() error { return <-h.done }
