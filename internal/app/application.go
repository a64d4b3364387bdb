package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"rfidgate/internal/access"
	"rfidgate/internal/capture"
	"rfidgate/internal/diag"
	"rfidgate/internal/events"
	"rfidgate/internal/logging"
	"rfidgate/internal/metrics"
	"rfidgate/internal/tag"
)

// EventPublisher receives one event per access decision.
type EventPublisher interface {
	Publish(ev events.Event) error
	Close()
}

// Option customizes an Application before it starts.
type Option func(*Application)

// WithCaptureReader reads framed blocks from r instead of opening the
// configured device or replay file.
func WithCaptureReader(r io.Reader, blocking bool) Option {
	return func(app *Application) {
		app.captureReader = r
		app.captureBlocking = blocking
	}
}

// WithActuator replaces the configured actuator.
func WithActuator(a access.Actuator) Option {
	return func(app *Application) {
		app.actuator = a
	}
}

// WithPublisher replaces the MQTT publisher.
func WithPublisher(p EventPublisher) Option {
	return func(app *Application) {
		app.publisher = p
	}
}

// WithDiagOutput sends diagnostics lines to w instead of stdout.
func WithDiagOutput(w io.Writer) Option {
	return func(app *Application) {
		app.diagOut = w
	}
}

// Application represents the main application
type Application struct {
	config Config
	logger *logrus.Logger

	captureReader   io.Reader
	captureBlocking bool
	actuator        access.Actuator
	publisher       EventPublisher
	diagOut         io.Writer

	source     *capture.Source
	decoder    *tag.Decoder
	gate       *access.Gate
	diag       *diag.Writer
	logRotator *logging.Rotator
	collector  *metrics.Collector
	closers    []io.Closer

	wg sync.WaitGroup
}

// NewApplication creates a new application instance
func NewApplication(config Config, opts ...Option) *Application {
	logger := logrus.New()
	if config.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	app := &Application{
		config: config,
		logger: logger,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// Logger returns the application logger
func (app *Application) Logger() *logrus.Logger {
	return app.logger
}

// Start runs until SIGINT or SIGTERM, or until a replay source ends.
func (app *Application) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}

// Run initializes every component and processes capture buffers until ctx
// is cancelled or the capture stream ends.
func (app *Application) Run(ctx context.Context) error {
	app.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("Starting rfidgate")

	if err := app.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		app.closeAll()
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	buffers := make(chan *tag.RawBuffer)
	captureErr := make(chan error, 1)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		captureErr <- app.source.StartCapture(ctx, buffers)
	}()

	if app.logRotator != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.logRotator.Start(ctx, app.config.Diag.MaxDays)
		}()
	}

	if app.config.Metrics.Enabled {
		server := metrics.NewServer(app.config.Metrics.Addr, app.config.Metrics.Path, app.collector, app.logger)
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := server.Start(ctx); err != nil {
				app.logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.reportStatistics(ctx)
	}()

	app.logger.Info("All components started successfully")

	app.processBuffers(ctx, buffers)

	err := <-captureErr
	if err != nil {
		app.logger.WithError(err).Error("Capture failed")
	}

	app.shutdown(cancel)
	return err
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	var err error

	app.decoder = tag.NewDecoder(app.config.Decoder.Thresholds(), app.logger)
	app.collector = metrics.NewCollector()

	if err = app.initializeCapture(); err != nil {
		return err
	}

	if app.config.Access.Enabled() {
		if err = app.initializeGate(); err != nil {
			return err
		}
	}

	if err = app.initializeDiag(); err != nil {
		return err
	}

	if app.publisher == nil && app.config.MQTT.Enabled {
		app.publisher, err = events.Connect(app.config.MQTT.Config, app.logger)
		if err != nil {
			return fmt.Errorf("failed to connect event publisher: %w", err)
		}
	}

	return nil
}

func (app *Application) initializeCapture() error {
	reader := app.captureReader
	blocking := app.captureBlocking

	if reader == nil {
		switch app.config.Capture.Mode {
		case CaptureSerial:
			port, err := capture.OpenSerial(app.config.Capture.Device, app.config.Capture.Port)
			if err != nil {
				return fmt.Errorf("failed to open capture port: %w", err)
			}
			app.closers = append(app.closers, port)
			reader = port
			blocking = false
		case CaptureReplay:
			r, err := OpenReplay(app.config.Capture.ReplayFile)
			if err != nil {
				return err
			}
			app.closers = append(app.closers, r)
			reader = r
			blocking = true
		}
	}

	app.source = capture.NewSource(reader, blocking, app.logger)
	return nil
}

func (app *Application) initializeGate() error {
	ids, err := app.config.Access.UniqueIDs()
	if err != nil {
		return err
	}

	actuator := app.actuator
	if actuator == nil {
		switch app.config.Access.Actuator {
		case ActuatorSerial:
			port, err := capture.OpenSerial(app.config.Access.Device, app.config.Access.Port)
			if err != nil {
				return fmt.Errorf("failed to open actuator port: %w", err)
			}
			app.closers = append(app.closers, port)
			actuator = access.NewSerialActuator(port, app.logger)
		default:
			actuator = access.NewLogActuator(app.logger)
		}
	}

	allow := access.NewAllowList(ids...)
	app.gate = access.NewGate(allow, actuator, app.config.Access.OpenDuration, app.config.Access.SettleDelay, app.logger)

	app.logger.WithFields(logrus.Fields{
		"allowed":  allow.Len(),
		"actuator": app.config.Access.Actuator,
	}).Info("Access control enabled")
	return nil
}

func (app *Application) initializeDiag() error {
	formats, err := diag.ParseFormats(app.config.Diag.Formats)
	if err != nil {
		return err
	}

	var outputs []io.Writer
	if app.diagOut != nil {
		outputs = append(outputs, app.diagOut)
	} else if app.config.Diag.Stdout {
		outputs = append(outputs, os.Stdout)
	}

	if app.config.Diag.LogDir != "" && len(formats) > 0 {
		app.logRotator, err = logging.NewRotator(app.config.Diag.LogDir, app.config.Diag.LogPrefix, app.config.Diag.RotateUTC, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize log rotator: %w", err)
		}
		outputs = append(outputs, app.logRotator)
	}

	if len(outputs) == 0 {
		formats = nil
	}
	app.diag = diag.NewWriter(io.MultiWriter(outputs...), formats)
	return nil
}

// OpenReplay opens a recorded capture, transparently gunzipping *.gz files.
func OpenReplay(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return file, nil
	}

	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open compressed replay file: %w", err)
	}
	return &gzipFile{Reader: gz, file: file}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	g.Reader.Close()
	return g.file.Close()
}

// processBuffers runs one decode cycle per buffer until the capture channel
// closes. On cancellation the remaining buffers are released undecoded so
// capture can exit.
func (app *Application) processBuffers(ctx context.Context, buffers <-chan *tag.RawBuffer) {
	for buf := range buffers {
		if ctx.Err() != nil {
			app.source.Release(buf)
			continue
		}
		app.processCycle(ctx, buf)
		app.source.Release(buf)
		app.syncCaptureMetrics()
	}
	app.logger.Info("Buffer processing stopped")
}

// processCycle decodes one buffer and acts on the result. The buffer stays
// owned by the cycle until the decision and settle delay are over.
func (app *Application) processCycle(ctx context.Context, buf *tag.RawBuffer) {
	started := time.Now()
	res, err := app.decoder.Decode(buf)
	app.collector.ObserveDecode(res, time.Since(started))
	if err != nil {
		return
	}

	cycleID := uuid.New()
	fields := res.Code.Fields()
	entry := app.logger.WithFields(logrus.Fields{
		"cycle_id":        cycleID.String(),
		"unique_id":       fields.UniqueID,
		"site_code":       fields.SiteCode,
		"manufacturer_id": fmt.Sprintf("%05X", fields.ManufacturerID),
	})

	if err := app.diag.WriteCode(&res.Code); err != nil {
		entry.WithError(err).Warn("Failed to write diagnostics")
	}

	if app.gate == nil {
		entry.Info("Tag decoded")
		return
	}

	verdict, err := app.gate.Handle(ctx, fields.UniqueID)
	app.collector.ObserveDecision(verdict, err)

	entry = entry.WithField("verdict", verdict.String())
	switch {
	case err != nil && ctx.Err() == nil:
		entry.WithError(err).Error("Access decision failed")
	case verdict == access.Accept:
		entry.Info("Access granted")
	default:
		entry.Info("Access denied")
	}

	if app.publisher != nil {
		ev := events.NewEvent(cycleID, fields, verdict, time.Now())
		if err := app.publisher.Publish(ev); err != nil {
			entry.WithError(err).Warn("Failed to publish access event")
		}
	}
}

// reportStatistics reports processing statistics periodically
func (app *Application) reportStatistics(ctx context.Context) {
	ticker := time.NewTicker(app.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.logStatistics()
		}
	}
}

// syncCaptureMetrics copies the capture counters into the collector. Blocks
// dropped during a cycle are visible as soon as the buffer is released.
func (app *Application) syncCaptureMetrics() capture.Stats {
	cs := app.source.Stats()
	app.collector.SyncCapture(metrics.CaptureStats{Dropped: cs.Dropped, Resyncs: cs.Resyncs})
	return cs
}

func (app *Application) logStatistics() {
	ds := app.decoder.Stats()
	cs := app.syncCaptureMetrics()

	fields := logrus.Fields{
		"cycles":         ds.Cycles,
		"no_card":        ds.NoCard,
		"decoded":        ds.Decoded,
		"incomplete":     ds.Incomplete,
		"corrupt":        ds.Corrupt,
		"desyncs":        ds.Desyncs,
		"blocks":         cs.Blocks,
		"dropped_blocks": cs.Dropped,
		"resyncs":        cs.Resyncs,
	}
	if reads := ds.Cycles - ds.NoCard; reads > 0 {
		fields["success_rate"] = fmt.Sprintf("%.2f%%", float64(ds.Decoded)/float64(reads)*100)
	}
	app.logger.WithFields(fields).Info("Decoder statistics")
}

// Stats returns the decoder counters
func (app *Application) Stats() tag.Stats {
	if app.decoder == nil {
		return tag.Stats{}
	}
	return app.decoder.Stats()
}

// shutdown gracefully shuts down the application
func (app *Application) shutdown(cancel context.CancelFunc) {
	app.logger.Info("Shutting down application")
	cancel()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("All goroutines finished")
	case <-time.After(5 * time.Second):
		app.logger.Warn("Shutdown timeout, forcing exit")
	}

	app.logStatistics()
	app.closeAll()

	app.logger.Info("Shutdown completed")
}

func (app *Application) closeAll() {
	if app.publisher != nil {
		app.publisher.Close()
	}
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to close resource")
		}
	}
	app.closers = nil
	if app.logRotator != nil {
		if err := app.logRotator.Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to close log rotator")
		}
		app.logRotator = nil
	}
}
