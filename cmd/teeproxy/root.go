package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agstrc/teeio"
	"github.com/agstrc/teeio/internal/capture"
	"github.com/agstrc/teeio/internal/certs"
	"github.com/agstrc/teeio/internal/config"
	"github.com/agstrc/teeio/internal/proxy"
)

const shutdownTimeout = 5 * time.Second

type rootOptions struct {
	configPath string
	exportCA   string
	flags      config.Config
}

func newRootCommand() *cobra.Command {
	return newCommand(&rootOptions{flags: config.Default()})
}

func newCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "teeproxy",
		Short:         "Forward proxy that mirrors relayed traffic into a capture log",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, opts.exportCA)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "TOML configuration file")
	flags.StringVar(&opts.exportCA, "export-ca", "", "directory to write the CA certificate and key to")
	flags.StringVar(&opts.flags.Listen, "listen", opts.flags.Listen, "address to listen on")
	flags.StringVar(&opts.flags.CapturePath, "capture", opts.flags.CapturePath, "file to append captured traffic to")
	flags.StringVar(&opts.flags.CACert, "ca-cert", opts.flags.CACert, "CA certificate (PEM)")
	flags.StringVar(&opts.flags.CAKey, "ca-key", opts.flags.CAKey, "CA private key (PEM)")
	flags.BoolVar(&opts.flags.Echo, "echo", opts.flags.Echo, "mirror the capture log to stderr")
	flags.BoolVar(&opts.flags.CaptureTunnels, "capture-tunnels", opts.flags.CaptureTunnels, "capture raw CONNECT tunnel bytes")
	flags.StringVar(&opts.flags.LogLevel, "log-level", opts.flags.LogLevel, "log level (trace, debug, info, warn, error)")

	return cmd
}

// resolveConfig loads the config file, if any, and lets explicitly set flags
// override it.
func resolveConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = opts.flags.Listen
	}
	if flags.Changed("capture") {
		cfg.CapturePath = opts.flags.CapturePath
	}
	if flags.Changed("ca-cert") {
		cfg.CACert = opts.flags.CACert
	}
	if flags.Changed("ca-key") {
		cfg.CAKey = opts.flags.CAKey
	}
	if flags.Changed("echo") {
		cfg.Echo = opts.flags.Echo
	}
	if flags.Changed("capture-tunnels") {
		cfg.CaptureTunnels = opts.flags.CaptureTunnels
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.flags.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, exportCA string) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	initLogger(os.Stderr, level)

	ca, err := loadAuthority(cfg)
	if err != nil {
		return err
	}
	if exportCA != "" {
		if err := writeAuthority(exportCA, ca); err != nil {
			return err
		}
		log.Info().Str("dir", exportCA).Msg("exported CA")
	}

	rec, err := openRecorder(cfg)
	if err != nil {
		return err
	}
	var opts []proxy.Option
	if !cfg.CaptureTunnels {
		opts = append(opts, proxy.WithoutTunnelCapture())
	}

	var recorder proxy.Recorder
	if rec != nil {
		defer rec.Close()
		recorder = rec
	}
	handler := proxy.NewHandler(&http.Transport{}, certs.NewIssuer(ca), recorder, opts...)

	server := &http.Server{Addr: cfg.Listen, Handler: handler}
	log.Info().Str("address", cfg.Listen).Str("capture", cfg.CapturePath).Bool("echo", cfg.Echo).Msg("proxy listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info().Msg("proxy stopped")
	return err
}

func loadAuthority(cfg config.Config) (*certs.Authority, error) {
	if cfg.CACert == "" {
		ca, err := certs.GenerateAuthority()
		if err != nil {
			return nil, err
		}
		log.Info().Msg("generated random CA certificate")
		return ca, nil
	}

	ca, err := certs.LoadAuthority(cfg.CACert, cfg.CAKey)
	if err != nil {
		return nil, fmt.Errorf("load CA: %w", err)
	}
	log.Info().Str("cert", cfg.CACert).Msg("loaded CA certificate")
	return ca, nil
}

// openRecorder returns nil when neither a capture file nor echo is configured.
func openRecorder(cfg config.Config) (*capture.Recorder, error) {
	var echo io.Writer
	if cfg.Echo {
		echo = teeio.DiagnosticOutput()
	}

	switch {
	case cfg.CapturePath != "":
		return capture.Open(cfg.CapturePath, echo)
	case echo != nil:
		return capture.New(echo, nil), nil
	default:
		return nil, nil
	}
}

func writeAuthority(dir string, ca *certs.Authority) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export CA: %w", err)
	}

	certFile, err := os.OpenFile(filepath.Join(dir, "ca.pem"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("export CA: %w", err)
	}
	defer certFile.Close()

	keyFile, err := os.OpenFile(filepath.Join(dir, "ca-key.pem"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("export CA: %w", err)
	}
	defer keyFile.Close()

	if err := ca.WritePEM(certFile, keyFile); err != nil {
		return fmt.Errorf("export CA: %w", err)
	}
	return nil
}
