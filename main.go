package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"i4.energy/across/pdscan/scanner"
	"i4.energy/across/pdscan/wire"
)

func main() {
	flag.String("serial-port", "/dev/ttyACM0", "Serial port the scanner is attached to (set it to 115200 8N1)")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("output-dir", "", "Directory captured pictures are written to")
	flag.Duration("read-timeout", 5*time.Second, "How long to wait for a response line")
	flag.Int("ready-attempts", 24, "How many read timeouts a capture waits for the picture")
	flag.Duration("fetch-timeout", 30*time.Second, "Upper bound for the picture transfer")
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	mode := flag.String("mode", "serve", "Run mode (serve, id, capture, scan)")
	trigger := flag.String("trigger", "trigger", "Capture trigger for capture mode (auto, trigger, code-read)")
	contrast := flag.Int("contrast", 0, "Picture contrast for capture mode (-255 to 255)")
	brightness := flag.Int("brightness", 0, "Picture brightness for capture mode (-255 to 255)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configPath), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	scannerConfig, err := scanner.NewConfigBuilder().
		WithDialer(scanner.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		WithLogger(logger.With("component", "scanner")).
		WithReadTimeout(config.ReadTimeout).
		WithReadyAttempts(config.ReadyAttempts).
		WithFetchTimeout(config.FetchTimeout).
		Build()
	if err != nil {
		logger.Error("Failed to create scanner config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Waiting for scanner, move it to wake it up", "port", config.SerialPort)
	s, err := scanner.New(ctx, scannerConfig)
	if err != nil {
		logger.Error("Did not detect scanner, wrong port?", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	switch *mode {
	case "serve":
		err = serve(ctx, logger, config, s)
	case "id":
		err = identify(ctx, s)
	case "capture":
		err = capture(ctx, logger, config, s, *trigger, *contrast, *brightness)
	case "scan":
		err = scanCodes(ctx, logger, s)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Failed", "mode", *mode, "error", err)
		s.Close()
		os.Exit(1)
	}
}

func identify(ctx context.Context, s *scanner.Scanner) error {
	model, err := s.DeviceID(ctx)
	if err != nil {
		return err
	}
	fmt.Println(model)
	return nil
}

func capture(ctx context.Context, logger *slog.Logger, config *Config, s *scanner.Scanner, triggerName string, contrast, brightness int) error {
	trigger, ok := wire.ParseTrigger(triggerName)
	if !ok {
		return fmt.Errorf("unknown trigger %q", triggerName)
	}

	logger.Info("Make a picture by pressing the trigger")
	pic, err := s.CapturePicture(ctx, scanner.CaptureParams{
		Trigger:    trigger,
		Contrast:   contrast,
		Brightness: brightness,
	})
	if errors.Is(err, scanner.ErrNoImage) {
		return fmt.Errorf("%w, maybe resetting the scanner helps", err)
	}
	if err != nil {
		return err
	}

	dir := config.OutputDir
	if dir == "" {
		dir = "."
	}
	path, err := Store{Dir: dir}.Save(uuid.New(), pic)
	if err != nil {
		return err
	}
	logger.Info("Picture saved", "type", pic.ContentType, "bytes", len(pic.Data), "path", path)
	fmt.Println(path)
	return nil
}

func scanCodes(ctx context.Context, logger *slog.Logger, s *scanner.Scanner) error {
	logger.Info("Scanning codes, press CTRL-C to exit")
	return s.ScanCodes(ctx, func(code string) error {
		logger.Info("Received code", "code", code)
		fmt.Println(code)
		return nil
	})
}

func serve(ctx context.Context, logger *slog.Logger, config *Config, s *scanner.Scanner) error {
	if _, err := s.DeviceID(ctx); err != nil {
		logger.Warn("Scanner did not identify itself", "error", err)
	}
	logger.Info("Starting scanner gateway", "model", s.Model())

	server := &Server{
		Logger:  logger.With("component", "server"),
		Scanner: s,
		Metrics: NewMetrics(),
	}
	if config.OutputDir != "" {
		server.Store = &Store{Dir: config.OutputDir}
	}

	httpServer := &http.Server{
		Addr:    config.BindAddress,
		Handler: server,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	return nil
}
