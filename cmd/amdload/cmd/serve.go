package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/amd"
)

var contentTypes = map[string]string{
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".toml": "application/toml",
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve DIR",
		Short: "Serve module documents over HTTP",
		Long: `Serve the module documents below DIR so that loaders configured with
an http baseUrl can fetch them.

Example:
  amdload serve ./modules --addr :8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return serve(ctx, addr, NewDocumentHandler(args[0], logger), logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	return cmd
}

// NewDocumentHandler serves module documents found below dir. Only the
// document extensions the loader fetches are exposed.
func NewDocumentHandler(dir string, logger amd.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		name := path.Clean("/" + chi.URLParam(req, "*"))
		contentType, ok := contentTypes[path.Ext(name)]
		if !ok {
			http.NotFound(w, req)
			return
		}

		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(name, "/"))))
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("Document not found", "path", name)
			http.NotFound(w, req)
			return
		}
		if err != nil {
			logger.Error("Failed to read document", "path", name, "error", err)
			http.Error(w, "failed to read document", http.StatusInternalServerError)
			return
		}

		logger.Debug("Serving document", "path", name, "requestID", middleware.GetReqID(req.Context()))
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	})
	return r
}

func serve(ctx context.Context, addr string, handler http.Handler, logger amd.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
