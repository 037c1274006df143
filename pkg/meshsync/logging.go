package meshsync

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel zapcore.Level

type Logger struct {
	*zap.Logger
}

const TraceLevel LogLevel = -2

var rootLogger = &Logger{zap.NewNop()}

func RootLogger() *Logger {
	return rootLogger
}

func (logger *Logger) Trace(msg string, fields ...zap.Field) {
	if logger == nil {
		return
	}
	if ce := logger.Check(zapcore.Level(TraceLevel), msg); ce != nil {
		ce.Write(fields...)
	}
}

type LogSettings struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
	// File may contain "{time}", replaced by the start time.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func parseLevel(level string) (zapcore.Level, bool) {
	if strings.EqualFold(level, "trace") {
		return zapcore.Level(TraceLevel), true
	}
	lvl, err := zapcore.ParseLevel(level)
	return lvl, err == nil
}

func InitLogs(settings LogSettings) error {
	var cfg zap.Config
	if settings.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if lvl, ok := parseLevel(settings.Level); ok {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	options := []zap.Option{
		zap.Hooks(func(e zapcore.Entry) error {
			if e.Level >= zapcore.WarnLevel {
				logNum.WithLabelValues(e.Level.String()).Inc()
			}
			return nil
		}),
	}

	if settings.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   strings.ReplaceAll(settings.File, "{time}", time.Now().Format("20060102150405")),
			MaxSize:    settings.MaxSizeMB,
			MaxBackups: settings.MaxBackups,
			MaxAge:     settings.MaxAgeDays,
			Compress:   settings.Compress,
			LocalTime:  true,
		}
		fileEncoder := zapcore.NewJSONEncoder(cfg.EncoderConfig)
		fileCore := zapcore.NewCore(fileEncoder, zapcore.AddSync(fileWriter), cfg.Level)
		options = append(options, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	zapLogger, err := cfg.Build(options...)
	if err != nil {
		return err
	}
	rootLogger = &Logger{zapLogger}
	return nil
}
