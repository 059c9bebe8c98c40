package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/greymass/roborovski/libraries/logger"
)

// SocketListen listens on a unix socket when the address ends in ".sock"
// and on TCP otherwise.
func SocketListen(addr string) (net.Listener, error) {
	if strings.HasSuffix(addr, ".sock") {
		os.Remove(addr)
		l, err := net.Listen("unix", addr)
		if err != nil {
			return nil, fmt.Errorf("listen unix %s: %w", addr, err)
		}
		if err := os.Chmod(addr, 0777); err != nil {
			l.Close()
			return nil, err
		}
		return l, nil
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return l, nil
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	l, err := SocketListen(addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("startup", "Listening on %s", addr)
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
