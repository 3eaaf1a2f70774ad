package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	// Embed the timezone database so LoadLocation works on hosts without one.
	_ "time/tzdata"
)

const (
	// defaultAttrCapacity covers the module attribute plus a typical field count
	defaultAttrCapacity = 8

	// traceLevelValue is slog.Level for TRACE level (below Debug which is -4)
	traceLevelValue = slog.Level(-8)

	// floatPrecisionRatio rounds floats to 3 decimal places in log output
	floatPrecisionRatio = 1000.0
)

type loggerContextKey struct{ name string }

// TraceIDKey is the context key for trace IDs. Use WithTraceID() to set values.
var TraceIDKey = loggerContextKey{"trace_id"}

// WithTraceID returns a new context with the trace ID set
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceIDFromContext returns the trace ID stored by WithTraceID, or ""
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

var attrPool = sync.Pool{
	New: func() any {
		s := make([]slog.Attr, 0, defaultAttrCapacity)
		return &s
	},
}

func getAttrs() *[]slog.Attr {
	ptr, ok := attrPool.Get().(*[]slog.Attr)
	if !ok {
		s := make([]slog.Attr, 0, defaultAttrCapacity)
		return &s
	}
	return ptr
}

func putAttrs(attrs *[]slog.Attr) {
	*attrs = (*attrs)[:0]
	attrPool.Put(attrs)
}

// CentralLogger manages module-aware logging with flexible routing
type CentralLogger struct {
	config        *LoggingConfig
	timezone      *time.Location
	console       io.Writer
	baseHandler   slog.Handler                   // handler for modules without specific config
	mainWriter    *BufferedFileWriter            // main log file writer (if file output enabled)
	moduleWriters map[string]*BufferedFileWriter // per-module buffered writers
	moduleLevels  map[string]slog.Level          // per-module log levels
	mu            sync.RWMutex
}

// NewCentralLogger creates a centralized logger with module routing
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	return newCentralLogger(cfg, os.Stdout)
}

// NewCentralLoggerWithConsole is NewCentralLogger with console output sent
// to w. CLI commands use it to keep stdout for command output.
func NewCentralLoggerWithConsole(cfg *LoggingConfig, w io.Writer) (*CentralLogger, error) {
	if w == nil {
		w = os.Stdout
	}
	return newCentralLogger(cfg, w)
}

func newCentralLogger(cfg *LoggingConfig, console io.Writer) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}

	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		config:        cfg,
		timezone:      tz,
		console:       console,
		moduleWriters: make(map[string]*BufferedFileWriter),
		moduleLevels:  make(map[string]slog.Level),
	}

	for module, levelStr := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(levelStr)
	}

	if err := cl.createBaseHandler(); err != nil {
		return nil, fmt.Errorf("failed to create base handler: %w", err)
	}

	for module, moduleConfig := range cfg.ModuleOutputs {
		if !moduleConfig.Enabled || moduleConfig.FilePath == "" {
			continue
		}

		if err := ensureFileDirectory(moduleConfig.FilePath); err != nil {
			cl.closeAllWriters()
			return nil, fmt.Errorf("failed to create directory for module %s: %w", module, err)
		}

		writer, err := NewBufferedFileWriter(moduleConfig.FilePath)
		if err != nil {
			cl.closeAllWriters()
			return nil, fmt.Errorf("failed to create log writer for module %s: %w", module, err)
		}
		cl.moduleWriters[module] = writer
	}

	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	default:
		tz, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
		}
		return tz, nil
	}
}

// createBaseHandler creates the default handler for console and/or main file output
func (cl *CentralLogger) createBaseHandler() error {
	var handlers []slog.Handler

	if cl.config.Console != nil && cl.config.Console.Enabled {
		handlers = append(handlers, newTextHandler(cl.console, parseLogLevel(cl.config.Console.Level), cl.timezone))
	}

	if cl.config.FileOutput != nil && cl.config.FileOutput.Enabled {
		if err := ensureFileDirectory(cl.config.FileOutput.Path); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		writer, err := NewBufferedFileWriter(cl.config.FileOutput.Path)
		if err != nil {
			return fmt.Errorf("failed to create log writer: %w", err)
		}
		cl.mainWriter = writer

		handlers = append(handlers, newJSONHandler(writer, parseLogLevel(cl.config.FileOutput.Level), cl.timezone))
	}

	if len(handlers) == 0 {
		handlers = append(handlers, newTextHandler(cl.console, parseLogLevel(cl.config.DefaultLevel), cl.timezone))
	}

	cl.baseHandler = combineHandlers(handlers)
	return nil
}

// Module returns a logger scoped to a specific module
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	moduleConfig, hasModuleConfig := cl.config.ModuleOutputs[name]
	moduleLevel := cl.getModuleLevelLocked(name)
	if hasModuleConfig && moduleConfig.Level != "" {
		moduleLevel = parseLogLevel(moduleConfig.Level)
	}

	var handlers []slog.Handler
	if moduleWriter, ok := cl.moduleWriters[name]; ok && hasModuleConfig && moduleConfig.Enabled {
		handlers = append(handlers, newJSONHandler(moduleWriter, moduleLevel, cl.timezone))
		if moduleConfig.ConsoleAlso && cl.config.Console != nil && cl.config.Console.Enabled {
			handlers = append(handlers, newTextHandler(cl.console, moduleLevel, cl.timezone))
		}
	} else {
		handlers = append(handlers, cl.baseHandler)
	}

	return &moduleLogger{
		module:   name,
		logger:   slog.New(combineHandlers(handlers)),
		level:    moduleLevel,
		timezone: cl.timezone,
	}
}

// getModuleLevelLocked returns the log level for a module (must hold read lock)
func (cl *CentralLogger) getModuleLevelLocked(module string) slog.Level {
	if level, ok := cl.moduleLevels[module]; ok {
		return level
	}
	return parseLogLevel(cl.config.DefaultLevel)
}

// Close flushes and closes all file writers
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	return cl.closeAllWritersLocked()
}

func (cl *CentralLogger) closeAllWriters() {
	_ = cl.closeAllWritersLocked()
}

func (cl *CentralLogger) closeAllWritersLocked() error {
	var errs []error

	if cl.mainWriter != nil {
		if err := cl.mainWriter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close main log writer: %w", err))
		}
		cl.mainWriter = nil
	}

	for module, writer := range cl.moduleWriters {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log writer for module %s: %w", module, err))
		}
	}
	cl.moduleWriters = nil

	return errors.Join(errs...)
}

// Flush writes buffered entries to the OS. Close performs a full sync.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	var errs []error
	if cl.mainWriter != nil {
		if err := cl.mainWriter.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush main log writer: %w", err))
		}
	}
	for module, writer := range cl.moduleWriters {
		if err := writer.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush log writer for module %s: %w", module, err))
		}
	}

	return errors.Join(errs...)
}

// ensureFileDirectory creates the directory for a file path if it doesn't exist
func ensureFileDirectory(filePath string) error {
	if filePath == "" {
		return nil
	}

	dir := filepath.Dir(filePath)
	if dir == "." || dir == filePath {
		return nil
	}

	const dirPermissions = 0o700
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return nil
}

// parseLogLevel converts string level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch level {
	case "trace":
		return traceLevelValue
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseSlogLevel(level LogLevel) slog.Level {
	return parseLogLevel(string(level))
}

// NewSlogLogger returns a standalone Logger writing text to w.
// A nil writer means stdout and a nil timezone means UTC.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = os.Stdout
	}
	if tz == nil {
		tz = time.UTC
	}
	slogLevel := parseSlogLevel(level)
	return &moduleLogger{
		logger:   slog.New(newTextHandler(w, slogLevel, tz)),
		level:    slogLevel,
		timezone: tz,
	}
}

// moduleLogger implements Logger interface for a specific module
type moduleLogger struct {
	module   string
	logger   *slog.Logger
	level    slog.Level
	timezone *time.Location
	fields   []Field
}

// Module creates a sub-module logger named "<parent>.<name>"
func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}

	module := name
	if m.module != "" {
		module = m.module + "." + name
	}

	return &moduleLogger{
		module:   module,
		logger:   m.logger,
		level:    m.level,
		timezone: m.timezone,
		fields:   slices.Clone(m.fields),
	}
}

func (m *moduleLogger) Trace(msg string, fields ...Field) {
	if m == nil || m.level > traceLevelValue {
		return
	}
	m.log(traceLevelValue, msg, fields...)
}

func (m *moduleLogger) Debug(msg string, fields ...Field) {
	if m == nil || m.level > slog.LevelDebug {
		return
	}
	m.log(slog.LevelDebug, msg, fields...)
}

func (m *moduleLogger) Info(msg string, fields ...Field) {
	if m == nil || m.level > slog.LevelInfo {
		return
	}
	m.log(slog.LevelInfo, msg, fields...)
}

func (m *moduleLogger) Warn(msg string, fields ...Field) {
	if m == nil || m.level > slog.LevelWarn {
		return
	}
	m.log(slog.LevelWarn, msg, fields...)
}

func (m *moduleLogger) Error(msg string, fields ...Field) {
	if m == nil {
		return
	}
	m.log(slog.LevelError, msg, fields...)
}

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	if m == nil {
		return
	}
	slogLevel := parseSlogLevel(level)
	if m.level > slogLevel {
		return
	}
	m.log(slogLevel, msg, fields...)
}

func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}

	return &moduleLogger{
		module:   m.module,
		logger:   m.logger,
		level:    m.level,
		timezone: m.timezone,
		fields:   slices.Concat(m.fields, fields),
	}
}

func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if m == nil {
		return nil
	}

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return m
	}

	return m.With(String(traceIDKey, traceID))
}

// Flush is a no-op; the CentralLogger owns the file handles
func (m *moduleLogger) Flush() error {
	return nil
}

func (m *moduleLogger) log(level slog.Level, msg string, fields ...Field) {
	attrsPtr := getAttrs()
	attrs := *attrsPtr

	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	for i := range m.fields {
		attrs = append(attrs, fieldToAttr(m.fields[i]))
	}
	for i := range fields {
		attrs = append(attrs, fieldToAttr(fields[i]))
	}

	m.logger.LogAttrs(context.Background(), level, msg, attrs...)

	*attrsPtr = attrs
	putAttrs(attrsPtr)
}

func roundFloat(val float64) float64 {
	return math.Round(val*floatPrecisionRatio) / floatPrecisionRatio
}

// fieldToAttr converts Field to slog.Attr, masking sensitive keys
func fieldToAttr(f Field) slog.Attr {
	if isSensitiveKey(f.Key) {
		return slog.String(f.Key, redactValue(f.Key, f.Value))
	}

	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case float32:
		return slog.Float64(f.Key, roundFloat(float64(v)))
	case float64:
		return slog.Float64(f.Key, roundFloat(v))
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}
