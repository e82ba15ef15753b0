package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/lantern/devserver"
	"github.com/luma/lantern/protocol"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort int

	// The port to listen for protocol clients on
	port int

	maxPayload int64
	reuse      bool
	trace      bool
)

func init() {
	flags := ServeCmd.Flags()

	flags.IntVarP(&port, "port", "p", protocol.DefaultPort, "The port to listen for client connections on")
	flags.IntVar(&httpPort, "http-port", 8222, "The port to serve monitoring requests on, 0 disables it")
	flags.StringVarP(&host, "host", "a", "127.0.0.1", "The host to listen on")
	flags.Int64Var(&maxPayload, "max-payload", devserver.DefaultMaxPayload, "Largest payload accepted on PUB")
	flags.BoolVar(&reuse, "reuseport", false, "Set SO_REUSEPORT on the listener")
	flags.BoolVar(&trace, "trace", false, "Log every frame received")
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local development server",
	Long: `Run a local development server

A single node server for trying out the client and for tests. Monitoring is
served over HTTP on /varz, /connz and /metrics.

Usage
	lantern serve --port 4222 --http-port 8222

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer signalStop()

		conf, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		server := devserver.New(devserver.Options{
			Host:       host,
			Port:       port,
			Reuseport:  reuse,
			MaxPayload: maxPayload,
			Trace:      trace,
			Log:        log.Named("devserver"),
		})

		if err := server.Start(ctx); err != nil {
			return err
		}

		var s *http.Server

		if httpPort > 0 {
			s = &http.Server{
				Addr:              net.JoinHostPort(host, strconv.Itoa(httpPort)),
				Handler:           devserver.NewRouter(server, conf.DebugHTTP, log.Named("http")),
				ReadHeaderTimeout: 5 * time.Second,
			}

			// Initializing the server in a goroutine so that
			// it won't block the graceful shutdown handling below
			go func() {
				if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Http server errored", zap.Error(err))
				}
			}()
		}

		log.Info("Listening",
			zap.String("addr", server.Addr()),
			zap.Int("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		if s != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			s.SetKeepAlivesEnabled(false)

			if err := s.Shutdown(shutdownCtx); err != nil {
				log.Error("Http server forced to shutdown", zap.Error(err))
			}
		}

		if err := server.Close(); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}
