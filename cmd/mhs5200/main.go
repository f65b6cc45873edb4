// Command mhs5200 controls an MHS-5200 signal generator from the command
// line, or serves it over HTTP with "serve".
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/mhs5200/internal/command"
	"github.com/shaunagostinho/mhs5200/internal/config"
	"github.com/shaunagostinho/mhs5200/internal/mhs5200"
	"github.com/shaunagostinho/mhs5200/internal/recorder"
	"github.com/shaunagostinho/mhs5200/internal/server"
	"github.com/shaunagostinho/mhs5200/internal/sim"
)

type options struct {
	configPath string
	port       string
	demo       bool
	debug      bool
	listen     string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to config file")
	flag.StringVar(&opts.port, "port", "", "Override serial device (e.g. /dev/ttyUSB0)")
	flag.BoolVar(&opts.demo, "demo", false, "Use a simulated generator")
	flag.BoolVar(&opts.debug, "debug", false, "Log raw serial traffic")
	flag.StringVar(&opts.listen, "listen", "", "Override listen address for serve (e.g. :8080)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <command> [args...] [, <command> ...]\n       %s [flags] serve\n\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\n%s\n", command.Usage)
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(opts, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "mhs5200: %v\n", err)
		if errors.Is(err, command.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(opts options, args []string) error {
	boot := logrus.New()
	boot.SetLevel(logrus.WarnLevel)
	cfg := config.Load(opts.configPath, boot)

	if opts.port != "" {
		cfg.Device.Port = opts.port
	}
	if opts.demo {
		cfg.Device.Demo = true
	}
	if opts.debug {
		cfg.Debug = true
	}
	if opts.listen != "" {
		cfg.Server.ListenAddr = opts.listen
	}

	log, closeLog := setupLogger(cfg.Log)
	defer closeLog()
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	serve := args[0] == "serve"

	// Reject bad commands before the port is touched.
	var chain command.Chain
	if !serve {
		var err error
		if chain, err = command.ParseChain(args); err != nil {
			return err
		}
		if err := chain.Validate(); err != nil {
			return err
		}
	}

	var tracers []mhs5200.Tracer
	if cfg.Debug {
		tracers = append(tracers, mhs5200.LogTracer{Log: log.WithField("component", "wire")})
	}
	if cfg.Trace.Enabled {
		rec := recorder.New(recorder.Config{Enabled: true, Path: cfg.Trace.Path}, log)
		defer rec.Close()
		tracers = append(tracers, rec)
	}
	var metrics *server.Metrics
	if serve {
		metrics = server.NewMetrics()
		tracers = append(tracers, metrics)
	}

	driverOpts := []mhs5200.Option{
		mhs5200.WithTimeout(cfg.Timeout()),
		mhs5200.WithLogger(log),
		mhs5200.WithTracer(mhs5200.MultiTracer(tracers...)),
		mhs5200.WithUploadProgress(func(slot, chunk, total int) {
			log.Debugf("arbitrary%d: chunk %d/%d", slot, chunk, total)
		}),
	}
	if cfg.Device.Demo {
		gen := sim.New()
		driverOpts = append(driverOpts, mhs5200.WithDialer(func(string) (mhs5200.Port, error) { return gen, nil }))
		log.Info("using simulated generator")
	}
	drv := mhs5200.New(driverOpts...)
	defer drv.Disconnect()

	if serve {
		return runServer(cfg, drv, metrics, log)
	}

	if err := drv.Connect(cfg.Device.Port); err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Device.Port, err)
	}
	out, err := chain.Run(drv)
	for _, line := range out {
		fmt.Println(line)
	}
	return err
}

func runServer(cfg *config.Config, drv *mhs5200.Driver, metrics *server.Metrics, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %v, shutting down", sig)
		cancel()
	}()

	// The server starts regardless; requests fail with "not connected"
	// until the device shows up.
	go connectWithRetry(ctx, log, drv, cfg.Device.Port, 10)

	return server.New(cfg, drv, metrics, log).Run(ctx)
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, logs the first maxAttempts
// failures as attempt n/max and then keeps trying at the max interval.
func connectWithRetry(ctx context.Context, log logrus.FieldLogger, drv *mhs5200.Driver, path string, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := drv.Connect(path)
		if err == nil || errors.Is(err, mhs5200.ErrAlreadyConnected) {
			log.Infof("connected to %s (attempt %d)", path, attempt+1)
			return
		}

		attempt++
		if attempt <= maxAttempts {
			log.Warnf("connect attempt %d/%d failed: %v (retry in %v)", attempt, maxAttempts, err, delay)
		} else {
			log.Warnf("connect attempt %d failed: %v (retry in %v)", attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// setupLogger builds the process logger from config. The returned func
// closes the log file, if any.
func setupLogger(cfg config.LogConfig) (*logrus.Logger, func()) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	closer := func() {}
	switch cfg.Output {
	case "", "stderr":
		log.SetOutput(os.Stderr)
	case "stdout":
		log.SetOutput(os.Stdout)
	case "discard":
		log.SetOutput(io.Discard)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Warnf("open log file %s: %v, using stderr", cfg.Output, err)
			break
		}
		log.SetOutput(f)
		closer = func() { f.Close() }
	}
	return log, closer
}
