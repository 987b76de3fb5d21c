package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log *zap.Logger
var sugar *zap.SugaredLogger

// Options controls optional outputs beyond stdout.
type Options struct {
	// File, when set, receives a JSON copy of every entry with size-based rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init initializes the global logger.
// Environment can be "dev", "uat", or "prod".
func Init(service, env, level string) {
	InitWithOptions(service, env, level, Options{})
}

// InitWithOptions is Init with an optional rotated log file.
func InitWithOptions(service, env, level string, opts Options) {
	var cfg zap.Config

	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	// Level override
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	buildOpts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if opts.File != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotatingFile(opts)),
			cfg.Level,
		)
		buildOpts = append(buildOpts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	logger, err := cfg.Build(buildOpts...)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	log = logger.With(zap.String("service", service))
	sugar = log.Sugar()

	sugar.Infow("logger initialized",
		"env", env,
		"level", level,
		"file", opts.File,
		"pid", os.Getpid(),
	)
}

func rotatingFile(opts Options) *lumberjack.Logger {
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	if lj.MaxSize <= 0 {
		lj.MaxSize = 100
	}
	return lj
}

// L returns the base structured Zap logger (for performance-sensitive paths).
func L() *zap.Logger {
	if log == nil {
		Init("unknown", "dev", "info")
	}
	return log
}

// S returns the Sugared logger (for convenience).
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init("unknown", "dev", "info")
	}
	return sugar
}

// Sync flushes any buffered logs (defer this in main()).
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
