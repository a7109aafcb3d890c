package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/RyanBlaney/dash-abr-client/configs"
	"github.com/RyanBlaney/dash-abr-client/internal/metrics"
	"github.com/RyanBlaney/dash-abr-client/internal/player"
	"github.com/RyanBlaney/dash-abr-client/internal/report"
	"github.com/RyanBlaney/dash-abr-client/pkg/manifest"
	"github.com/RyanBlaney/dash-abr-client/pkg/transport"
	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/latency-benchmark-common/output"
	"github.com/tunein/go-logging/v7/pkg/logger"
	"github.com/tunein/go-logging/v7/pkg/logger/logtypes"
	"github.com/tunein/go-logging/v7/pkg/rootcollector"
	"github.com/tunein/go-logging/v7/pkg/rootlogger"
)

// Context holds the application context and configuration
type Context struct {
	// CLI arguments
	ManifestURL  string
	ProfileFile  string // Session profile file (optional)
	OutputFile   string
	OutputFormat string
	Logic        string
	MediaTypes   []string
	BufferSize   int
	Duration     time.Duration
	Speed        float64
	Looping      bool
	Drain        bool
	IncludeTrace bool
	MetricsAddr  string
	Verbose      bool
	Quiet        bool

	// Runtime context
	Logger  logging.Logger
	Config  *configs.Config
	Profile *SessionProfile
	Out     io.Writer
}

// PlayerApp handles the playback application lifecycle
type PlayerApp struct {
	ctx     *Context
	config  *configs.Config
	profile *SessionProfile
	factory *transport.Factory
	logger  logging.Logger
}

// NewPlayerApp creates a new player application. ctx.Config, when set, replaces the
// configuration loaded from viper.
func NewPlayerApp(ctx *Context) (*PlayerApp, error) {
	logger := setupLogging(ctx)
	ctx.Logger = logger

	config, profile, err := loadAndMergeConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx.Config = config
	ctx.Profile = profile

	if ctx.Out == nil {
		ctx.Out = os.Stdout
	}

	logger.Debug("Player application initialized", logging.Fields{
		"profile_file":  ctx.ProfileFile,
		"manifest":      ctx.ManifestURL,
		"output_format": config.OutputFormat,
		"logic":         config.Adaptation.Logic,
	})

	return &PlayerApp{
		ctx:     ctx,
		config:  config,
		profile: profile,
		factory: transport.NewFactory(config.TransportConfig(), logger),
		logger:  logger,
	}, nil
}

// Run plays the session to its end and writes the report
func (app *PlayerApp) Run(ctx context.Context) error {
	location := app.manifestURL()

	app.logger.Debug("Loading manifest", logging.Fields{
		"manifest": location,
	})

	mpd, err := manifest.Load(ctx, app.factory, location)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	view, err := manifest.NewView(mpd, location, app.logger)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}

	pc, err := playerConfig(app.config)
	if err != nil {
		return err
	}

	recorder := report.NewRecorder()
	observers := []player.Observer{recorder}

	var collector *metrics.Collector
	if app.config.Metrics.Enabled {
		collector = metrics.New()
		observers = append(observers, collector)
	}

	manager, err := player.NewManager(view, app.factory, pc, app.logger, observers...)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if collector != nil {
		server := metrics.NewServer(app.config.Metrics.ListenAddr, collector, func() any {
			return sessionStatus(manager)
		}, app.logger)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := server.Shutdown(context.Background()); err != nil {
				app.logger.Error(err, "Failed to stop metrics server")
			}
		}()
	}

	app.logger.Info("Starting playback session", logging.Fields{
		"session_id": manager.ID(),
		"logic":      pc.Logic,
		"dynamic":    view.IsDynamic(),
		"streams":    len(manager.MediaTypes()),
	})

	runErr := manager.Run(ctx)

	result := manager.Result()
	sessionReport := report.NewCalculator(app.logger).Calculate(result, recorder.Trace())

	var trace *report.Trace
	if app.config.Output.IncludeTrace {
		trace = recorder.Trace()
	}

	if err := app.outputResults(sessionReport, trace); err != nil {
		return fmt.Errorf("failed to output results: %w", err)
	}

	if app.config.Metrics.Collector {
		app.collectSessionMetrics(sessionReport)
	}

	// Return error if every stream failed
	failed := 0
	for _, sr := range result.Streams {
		if sr.Error != "" {
			failed++
		}
	}
	if failed > 0 && failed == len(result.Streams) {
		if runErr == nil {
			runErr = fmt.Errorf("%d streams reported errors", failed)
		}
		return fmt.Errorf("all streams failed: %w", runErr)
	}
	if runErr != nil {
		app.logger.Warn("Session ended with errors", logging.Fields{
			"error": runErr.Error(),
		})
	}

	return nil
}

func (app *PlayerApp) manifestURL() string {
	if app.ctx.ManifestURL != "" {
		return app.ctx.ManifestURL
	}
	if app.profile != nil {
		return app.profile.Manifest
	}
	return ""
}

// sessionStatus is served on the metrics server while the session runs
func sessionStatus(m *player.Manager) map[string]any {
	streams := make(map[string]any)
	for _, mt := range m.MediaTypes() {
		entry := map[string]any{}
		if engine, ok := m.Engine(mt); ok {
			entry["quality"] = engine.Quality()
			entry["bitrate"] = engine.Bitrate()
		}
		if receiver, ok := m.Receiver(mt); ok {
			entry["state"] = receiver.State().String()
		}
		if consumer, ok := m.Consumer(mt); ok {
			level, next := consumer.Buffered()
			entry["played_seconds"] = consumer.Played().Seconds()
			entry["stalls"] = consumer.StallCount()
			entry["buffer_seconds"] = level.Seconds()
			entry["next_segment_seconds"] = next.Seconds()
		}
		streams[string(mt)] = entry
	}

	return map[string]any{
		"session_id":      m.ID(),
		"logic":           m.Config().Logic,
		"elapsed_seconds": m.Elapsed().Seconds(),
		"streams":         streams,
	}
}

// setupLogging configures logging based on context
func setupLogging(ctx *Context) logging.Logger {
	if ctx.Logger != nil {
		return ctx.Logger
	}
	return logging.NewDefaultLogger()
}

// loadAndMergeConfig loads configuration and the optional profile and merges the CLI flags
func loadAndMergeConfig(ctx *Context) (*configs.Config, *SessionProfile, error) {
	baseConfig := ctx.Config
	if baseConfig == nil {
		var err error
		baseConfig, err = configs.LoadConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load base configuration: %w", err)
		}
	}

	var profile *SessionProfile
	if ctx.ProfileFile != "" {
		var err error
		profile, err = loadProfileFromFile(ctx.ProfileFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load session profile: %w", err)
		}
		if ctx.ManifestURL != "" && profile.Manifest == "" {
			profile.Manifest = ctx.ManifestURL
		}
		if err := profile.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid session profile: %w", err)
		}
	}

	if ctx.ManifestURL == "" && profile == nil {
		return nil, nil, fmt.Errorf("a manifest URL or a session profile is required")
	}

	merged := mergeConfig(baseConfig, profile, ctx)

	if err := configs.ValidateConfig(merged); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return merged, profile, nil
}

// outputResults handles all result output
func (app *PlayerApp) outputResults(sessionReport *report.Report, trace *report.Trace) error {
	outputData := map[string]any{
		"session_report": sessionReport,
		"configuration": map[string]any{
			"logic":               app.config.Adaptation.Logic,
			"segment_buffer_size": app.config.Player.SegmentBufferSize,
			"playback_speed":      app.config.Player.PlaybackSpeed,
			"drain":               app.config.Player.Drain,
			"looping":             app.config.Player.Looping,
			"max_duration":        app.config.Player.MaxDuration.Seconds(),
		},
	}
	if app.config.Output.Timestamps {
		outputData["timestamp"] = time.Now()
	}
	if trace != nil {
		outputData["trace"] = trace
	}
	if app.profile != nil {
		outputData["profile"] = app.profile.Name
	}

	return app.emit(outputData)
}

// emit formats data with the configured formatter and writes it to the output file or
// the context writer
func (app *PlayerApp) emit(data map[string]any) error {
	// Create formatter
	var formatter output.Formatter
	switch app.config.OutputFormat {
	case "json":
		formatter = &output.JSONFormatter{}
	case "yaml":
		formatter = &output.YAMLFormatter{}
	case "csv":
		formatter = &output.CSVFormatter{}
	case "table":
		formatter = &output.TableFormatter{}
	default:
		formatter = &output.JSONFormatter{}
	}

	// Format data
	formattedData, err := formatter.Format(data, app.config.Output.PrettyPrint)
	if err != nil {
		// If JSON formatting fails due to infinite values, try to sanitize the data
		if strings.Contains(err.Error(), "unsupported value") {
			sanitizedData := sanitizeForJSON(data)
			formattedData, err = formatter.Format(sanitizedData, app.config.Output.PrettyPrint)
		}
		if err != nil {
			return fmt.Errorf("failed to format output data: %w", err)
		}
	}

	// Write to file or stdout
	if app.ctx.OutputFile != "" {
		return app.writeToFile(formattedData)
	}

	if app.ctx.Quiet {
		return nil
	}

	_, err = app.ctx.Out.Write(formattedData)
	return err
}

// collectSessionMetrics sends session metrics to rootcollector
func (app *PlayerApp) collectSessionMetrics(sessionReport *report.Report) {
	if sessionReport == nil {
		return
	}

	err := rootlogger.Configure(logger.LogOptions{
		Out:          app.config.Metrics.LogFile,
		ReopenSignal: syscall.SIGHUP,
		Level:        logtypes.InfoLevel,
	})
	if err != nil {
		logging.Error(err, "Failed configuring log writer")
	}

	baseTags := []string{
		"logic:" + sessionReport.Logic,
		"dynamic:" + strconv.FormatBool(sessionReport.Dynamic),
	}
	if app.profile != nil {
		baseTags = append(baseTags, "profile:"+app.profile.Name)
		for k, v := range app.profile.Tags {
			baseTags = append(baseTags, k+":"+v)
		}
	}

	rootcollector.Metric("streaming.abr.session.duration.milliseconds", int64(sessionReport.ElapsedSeconds*1000), baseTags)

	for _, sr := range sessionReport.Streams {
		tags := append(append([]string(nil), baseTags...), "media_type:"+string(sr.MediaType))

		rootcollector.Metric("streaming.abr.segments", int64(sr.Segments), tags)
		rootcollector.Metric("streaming.abr.switches", int64(sr.Switches), tags)
		rootcollector.Metric("streaming.abr.stalls", int64(sr.Stalls), tags)
		rootcollector.Metric("streaming.abr.stall.milliseconds", int64(sr.StallSeconds*1000), tags)
		rootcollector.Metric("streaming.abr.startup.milliseconds", sr.StartupMs, tags)
		rootcollector.Metric("streaming.abr.bitrate.mean.bps", int64(sr.Bitrate.Mean), tags)
		rootcollector.Metric("streaming.abr.throughput.mean.bps", int64(sr.Throughput.Mean), tags)
	}
}

// writeToFile writes data to the specified output file
func (app *PlayerApp) writeToFile(data []byte) error {
	// Ensure directory exists
	dir := filepath.Dir(app.ctx.OutputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(app.ctx.OutputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	app.logger.Debug("Results written to file", logging.Fields{
		"output_file": app.ctx.OutputFile,
		"size_bytes":  len(data),
	})

	return nil
}

// sanitizeForJSON recursively cleans infinite and NaN values from any data structure
func sanitizeForJSON(data any) any {
	switch v := data.(type) {
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return 0.0
		}
		return v
	case map[string]any:
		result := make(map[string]any)
		for k, val := range v {
			result[k] = sanitizeForJSON(val)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = sanitizeForJSON(val)
		}
		return result
	case time.Time, time.Duration:
		return v
	default:
		return sanitizeWithReflection(data)
	}
}

// sanitizeWithReflection converts structs, slices and maps into sanitized generic values
func sanitizeWithReflection(data any) any {
	if data == nil {
		return nil
	}

	val := reflect.ValueOf(data)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Struct:
		result := make(map[string]any)
		typ := val.Type()
		for i := 0; i < val.NumField(); i++ {
			field := val.Field(i)
			if !field.CanInterface() {
				continue
			}

			fieldName := typ.Field(i).Name
			if tag := typ.Field(i).Tag.Get("json"); tag != "" && tag != "-" {
				if name := strings.Split(tag, ",")[0]; name != "" {
					fieldName = name
				}
			}

			result[fieldName] = sanitizeForJSON(field.Interface())
		}
		return result
	case reflect.Slice:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			result[i] = sanitizeForJSON(val.Index(i).Interface())
		}
		return result
	case reflect.Map:
		result := make(map[string]any)
		for _, key := range val.MapKeys() {
			result[fmt.Sprintf("%v", key.Interface())] = sanitizeForJSON(val.MapIndex(key).Interface())
		}
		return result
	case reflect.Float64, reflect.Float32:
		f := val.Float()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return 0.0
		}
		return f
	default:
		return val.Interface()
	}
}
