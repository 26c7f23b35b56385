// Copyright 2025 The R1FS Agent Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger passed around r1fs-agent.
// Arguments after msg are logr-style pairs: "key", value, "key", value.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)

	// Error logs at ErrorLevel. err may be nil.
	Error(err error, msg string, keysAndValues ...any)

	WithName(name string) Logger
	WithValues(keysAndValues ...any) Logger

	// Logr exposes the same core to libraries that log through logr, klog among them.
	Logr() logr.Logger

	Sync() error
}

var (
	mu  sync.RWMutex
	std = NewNopLogger()

	once sync.Once
)

// Init replaces the process logger. Calls after the first are ignored.
func Init(opts *Options) {
	once.Do(func() {
		l := NewLogger(opts)
		mu.Lock()
		std = l
		mu.Unlock()
	})
}

// Std returns the process logger.
func Std() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

func Debug(msg string, kv ...any)            { Std().Debug(msg, kv...) }
func Info(msg string, kv ...any)             { Std().Info(msg, kv...) }
func Warn(msg string, kv ...any)             { Std().Warn(msg, kv...) }
func Error(err error, msg string, kv ...any) { Std().Error(err, msg, kv...) }
func WithName(name string) Logger            { return Std().WithName(name) }
func WithValues(kv ...any) Logger            { return Std().WithValues(kv...) }
func Logr() logr.Logger                      { return Std().Logr() }
func Sync() error                            { return Std().Sync() }

// NewLogger builds a zap backed Logger. A nil opts uses NewOptions.
func NewLogger(opts *Options) Logger {
	if opts == nil {
		opts = NewOptions()
	}

	enc := zap.NewProductionEncoderConfig()
	enc.MessageKey = "message"
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.EncodeDuration = millis
	if opts.Format == "console" && opts.EnableColor {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	_ = level.UnmarshalText([]byte(opts.Level))

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	z, err := zap.Config{
		Level:            level,
		DisableCaller:    opts.DisableCaller,
		Encoding:         opts.Format,
		EncoderConfig:    enc,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}.Build(zap.AddCallerSkip(opts.CallerSkip), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		panic(fmt.Sprintf("log: build zap logger: %v", err))
	}
	if opts.Name != "" {
		z = z.Named(opts.Name)
	}
	return &zapLogger{z: z}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return &zapLogger{z: zap.NewNop()}
}

// NewFromZap wraps an existing zap logger, typically a zaptest/observer core.
func NewFromZap(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

func millis(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendFloat64(float64(d) / float64(time.Millisecond))
}

type zapLogger struct {
	z *zap.Logger
}

var _ Logger = (*zapLogger)(nil)

func (l *zapLogger) Debug(msg string, kv ...any) { l.z.Debug(msg, toFields(kv...)...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.z.Info(msg, toFields(kv...)...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.z.Warn(msg, toFields(kv...)...) }

func (l *zapLogger) Error(err error, msg string, kv ...any) {
	fields := toFields(kv...)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.z.Error(msg, fields...)
}

func (l *zapLogger) WithName(name string) Logger {
	return &zapLogger{z: l.z.Named(name)}
}

func (l *zapLogger) WithValues(kv ...any) Logger {
	return &zapLogger{z: l.z.With(toFields(kv...)...)}
}

func (l *zapLogger) Logr() logr.Logger { return zapr.NewLogger(l.z) }
func (l *zapLogger) Sync() error       { return l.z.Sync() }
