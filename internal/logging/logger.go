package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerFactory provides centralized logger creation
type LoggerFactory struct {
	config     *Config
	rootLogger *zap.Logger
	writer     zapcore.WriteSyncer
	closer     io.Closer

	loggers   map[string]*zap.Logger
	loggersMu sync.RWMutex
}

// NewLoggerFactory creates a new logger factory
func NewLoggerFactory(config *Config) (*LoggerFactory, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	writer, closer, err := openOutput(config)
	if err != nil {
		return nil, err
	}

	level, _ := zapcore.ParseLevel(config.Level)

	f := &LoggerFactory{
		config:  config,
		writer:  writer,
		closer:  closer,
		loggers: make(map[string]*zap.Logger),
	}
	f.rootLogger = zap.New(f.buildCore(level), f.buildOptions()...)

	return f, nil
}

// NewFactoryFromLogger wraps an existing logger. Module levels can only
// raise the wrapped logger's level.
func NewFactoryFromLogger(logger *zap.Logger, moduleLevels map[string]string) *LoggerFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggerFactory{
		config:     &Config{ModuleLevels: moduleLevels},
		rootLogger: logger,
		loggers:    make(map[string]*zap.Logger),
	}
}

// NewLogger builds the root logger for config.
func NewLogger(config *Config) (*zap.Logger, error) {
	f, err := NewLoggerFactory(config)
	if err != nil {
		return nil, err
	}
	return f.Root(), nil
}

// Root returns the root logger.
func (f *LoggerFactory) Root() *zap.Logger {
	return f.rootLogger
}

// GetLogger returns a logger for the specified module
func (f *LoggerFactory) GetLogger(module string) *zap.Logger {
	f.loggersMu.RLock()
	if logger, exists := f.loggers[module]; exists {
		f.loggersMu.RUnlock()
		return logger
	}
	f.loggersMu.RUnlock()

	f.loggersMu.Lock()
	defer f.loggersMu.Unlock()

	// Double-check after acquiring write lock
	if logger, exists := f.loggers[module]; exists {
		return logger
	}

	logger := f.rootLogger.Named(module)
	if levelStr, ok := f.config.ModuleLevels[module]; ok {
		if level, err := zapcore.ParseLevel(levelStr); err == nil {
			if f.writer == nil {
				logger = logger.WithOptions(zap.IncreaseLevel(level))
			} else {
				core := f.buildCore(level)
				logger = logger.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core {
					return core
				}))
			}
		}
	}

	f.loggers[module] = logger
	return logger
}

// Sync flushes buffered entries and closes a rotated log file.
func (f *LoggerFactory) Sync() error {
	err := f.rootLogger.Sync()
	if f.closer != nil {
		if cerr := f.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func openOutput(config *Config) (zapcore.WriteSyncer, io.Closer, error) {
	switch config.OutputPath {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil, nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   config.OutputPath,
		MaxSize:    config.Rotation.MaxSize,
		MaxAge:     config.Rotation.MaxAge,
		MaxBackups: config.Rotation.MaxBackups,
		Compress:   config.Rotation.Compress,
		LocalTime:  config.Rotation.LocalTime,
	}
	return zapcore.AddSync(rotator), rotator, nil
}

func (f *LoggerFactory) buildCore(level zapcore.Level) zapcore.Core {
	encoderConfig := f.config.buildEncoderConfig()

	var encoder zapcore.Encoder
	if f.config.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, f.writer, level)

	if f.config.Sampling.Enabled {
		core = zapcore.NewSamplerWithOptions(
			core,
			time.Second,
			f.config.Sampling.Initial,
			f.config.Sampling.Thereafter,
		)
	}

	return core
}

func (f *LoggerFactory) buildOptions() []zap.Option {
	options := []zap.Option{}

	if f.config.EnableCaller {
		options = append(options, zap.AddCaller())
	}
	if f.config.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if f.config.Development {
		options = append(options, zap.Development())
	}

	if len(f.config.InitialFields) > 0 {
		keys := make([]string, 0, len(f.config.InitialFields))
		for k := range f.config.InitialFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fields := make([]zap.Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, zap.Any(k, f.config.InitialFields[k]))
		}
		options = append(options, zap.Fields(fields...))
	}

	return options
}
