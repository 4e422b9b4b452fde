package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pb33f/pagecycle/sitegen"
	"github.com/spf13/cobra"
)

var (
	port int
	host string
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve <site-dir>",
	Short: "Serve a fixture site over HTTP",
	Long: `Serve a directory, typically one written by 'pagecycle generate', over HTTP
so its manifest can be benchmarked by URL. Responses are never cached, every
cycle loads the pages afresh.`,
	Args: cobra.ExactArgs(1), // Require exactly one positional argument
	Example: `  pagecycle serve site
  pagecycle serve site --port 8080
  pagecycle serve site -p 3000 -v`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&port, "port", "p", 9876, "Port to listen on")
	serveCmd.Flags().StringVar(&host, "host", "localhost", "Interface to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := args[0]
	logger := GetLogger()

	if err := ValidateSiteDir(dir); err != nil {
		return err
	}

	// Validate port range
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(host, fmt.Sprint(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           siteHandler(dir, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	logger.Info("fixture server started",
		"dir", dir,
		"manifest", fmt.Sprintf("http://%s/%s", addr, sitegen.ManifestName))

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("fixture server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down fixture server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("fixture server shutdown: %w", err)
	}

	logger.Info("fixture server stopped")
	return nil
}

func siteHandler(dir string, logger *slog.Logger) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		logger.Debug("serving", "path", r.URL.Path)
		files.ServeHTTP(w, r)
	})
}

// ValidateSiteDir checks that dir exists and is a directory.
func ValidateSiteDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("site directory is required")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("site directory does not exist: %s", dir)
		}
		return fmt.Errorf("error accessing site directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("provided path is a file, not a directory: %s", dir)
	}

	return nil
}
