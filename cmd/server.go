package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/parcel/internal/admin"
	"github.com/luma/parcel/internal/env"
	"github.com/luma/parcel/internal/metrics"
	"github.com/luma/parcel/protocol"
	"github.com/luma/parcel/storage"
	"github.com/luma/parcel/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for tcp clients on
	port int

	// The host and port to listen for admin http requests on
	adminHost string
	adminPort int

	// Exit once the first client has disconnected
	single bool

	numListeners int
)

func init() {
	flags := ServerCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", 4444, "The port to listen client connections on")
	flags.StringVar(&adminHost, "admin-host", "127.0.0.1", "The host the admin HTTP API listens on")
	flags.IntVar(&adminPort, "admin-port", 4445, "The port to listen to admin HTTP requests on, 0 disables it")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to listen on")
	flags.BoolVar(&single, "single", false, "Exit once the first client disconnects")
	flags.IntVar(&numListeners, "listeners", 0, "Number of SO_REUSEPORT listeners, defaults to one per CPU")
}

var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start up the Parcel server",
	Long: `Start up the Parcel server

Usage
	parcel server --config config.txt --port 4444

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx, configPath)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("host") {
			conf.Host = host
		}
		if flags.Changed("port") {
			conf.Port = port
		}
		if flags.Changed("admin-host") {
			conf.AdminHost = adminHost
		}
		if flags.Changed("admin-port") {
			conf.AdminPort = adminPort
		}

		log, err := env.MakeLogger(conf.LogLevel, conf.LogEncoding)
		if err != nil {
			return err
		}
		defer func() {
			_ = log.Sync()
		}()

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		metrics.Register()

		journal := storage.NewInmemoryJournal(conf.MaxJournal)
		defer journal.Close()

		var s *http.Server
		if conf.AdminPort > 0 {
			s = &http.Server{
				Addr:    net.JoinHostPort(conf.AdminHost, strconv.Itoa(conf.AdminPort)),
				Handler: admin.NewRouter(conf.DebugHTTP, log.Named("http"), journal),
			}

			// Initializing the server in a goroutine so that
			// it won't block the graceful shutdown handling below
			go func() {
				if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Http server errored", zap.Error(err))
				}
			}()
		}

		tcp := transport.NewTCP(transport.Options{
			Host:         conf.Host,
			Port:         conf.Port,
			Reuseport:    !single,
			NumListeners: numListeners,
			SingleClient: single,
			Limits:       protocol.Limits{MaxPayloadBytes: conf.MaxPayload},
			FrameRate:    conf.FrameRate,
			FrameBurst:   conf.FrameBurst,
			Handler: transport.Handlers(
				transport.NewLogHandler(log.Named("handler")),
				journal,
			),
			Log: log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		log.Info("Listening",
			zap.Any("config", conf),
			zap.Stringer("addr", tcp.Addr()),
			zap.Bool("single", single))

		select {
		case <-ctx.Done():
		case <-tcp.Done():
			if err = tcp.Err(); err != nil {
				log.Error("TCP server failed, exiting", zap.Error(err))
			} else {
				log.Info("Client has gone, exiting")
			}
		}

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// Clients get 5 seconds to say goodbye before they are cut off
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if s != nil {
			s.SetKeepAlivesEnabled(false)

			if err := s.Shutdown(ctx); err != nil {
				log.Error("Http server forced to shutdown", zap.Error(err))
			}
		}

		if err := tcp.Shutdown(ctx); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return err
	},
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
