// Copyright 2024 Kestrel Engine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logutil holds the process-wide structured logger. Subsystems log
// through the package-level helpers so the logger can be swapped at runtime.
package logutil

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures the global logger. The zero value is adjusted to a
// console logger at info level.
type LogConfig struct {
	// Level is the minimum level to emit: debug, info, warn, error, panic
	// or fatal.
	Level string `toml:"level"`
	// Format is the entry encoding, json or console.
	Format string `toml:"format"`
	// Filename enables file output with rotation. Empty means stderr.
	Filename string `toml:"filename"`
	// MaxSize is the size in MB a log file may reach before rotation.
	MaxSize int `toml:"max-size"`
	// MaxDays is how many days rotated files are retained, 0 keeps all.
	MaxDays int `toml:"max-days"`
	// MaxBackups is how many rotated files are retained, 0 keeps all.
	MaxBackups int `toml:"max-backups"`
	// StacktraceLevel is the level at which stacktraces are attached.
	StacktraceLevel string `toml:"stacktrace-level"`
}

func (cfg *LogConfig) adjust() {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "console"
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 512
	}
	if cfg.StacktraceLevel == "" {
		cfg.StacktraceLevel = "panic"
	}
}

func (cfg *LogConfig) getLevel() zap.AtomicLevel {
	return zap.NewAtomicLevelAt(getZapLevel(cfg.Level))
}

func (cfg *LogConfig) getOptions() []zap.Option {
	return []zap.Option{
		zap.AddStacktrace(getZapLevel(cfg.StacktraceLevel)),
		zap.AddCaller(),
	}
}

func (cfg *LogConfig) getEncoder() zapcore.Encoder {
	return getLoggerEncoder(cfg.Format)
}

func (cfg *LogConfig) getSyncer() zapcore.WriteSyncer {
	if cfg.Filename == "" {
		return getConsoleSyncer()
	}
	if stat, err := os.Stat(cfg.Filename); err == nil && stat.IsDir() {
		panic("log file can't be a directory")
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxDays,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  true,
	})
}

func getZapLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		panic(fmt.Sprintf("unsupported log level: %s", level))
	}
	return l
}

func getLoggerEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006/01/02 15:04:05.000000 -0700"))
	}
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeDuration = zapcore.StringDurationEncoder
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(encoderCfg)
	case "console":
		return zapcore.NewConsoleEncoder(encoderCfg)
	default:
		panic(fmt.Sprintf("unsupported log format: %s", format))
	}
}

func getConsoleSyncer() zapcore.WriteSyncer {
	return zapcore.AddSync(os.Stderr)
}

var globalLogger atomic.Pointer[zap.Logger]

func init() {
	SetupLogger(&LogConfig{})
}

// SetupLogger builds the global logger from cfg, replacing any previous
// logger. It panics on an unsupported level or format.
func SetupLogger(cfg *LogConfig) *zap.Logger {
	cfg.adjust()
	core := zapcore.NewCore(cfg.getEncoder(), cfg.getSyncer(), cfg.getLevel())
	logger := zap.New(core, cfg.getOptions()...)
	globalLogger.Store(logger)
	return logger
}

// GetGlobalLogger returns the current global logger.
func GetGlobalLogger() *zap.Logger {
	return globalLogger.Load()
}

// GetSkip1Logger returns the global logger with one caller frame skipped,
// for use by the package-level helpers below.
func GetSkip1Logger() *zap.Logger {
	return globalLogger.Load().WithOptions(zap.AddCallerSkip(1))
}

func Debug(msg string, fields ...zap.Field) {
	GetSkip1Logger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetSkip1Logger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetSkip1Logger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetSkip1Logger().Error(msg, fields...)
}

func Panic(msg string, fields ...zap.Field) {
	GetSkip1Logger().Panic(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetSkip1Logger().Fatal(msg, fields...)
}

// Debugf and friends format with fmt and log without structured fields.
func Debugf(format string, args ...any) {
	GetSkip1Logger().Debug(fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	GetSkip1Logger().Info(fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	GetSkip1Logger().Warn(fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...any) {
	GetSkip1Logger().Error(fmt.Sprintf(format, args...))
}
