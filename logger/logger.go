/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger is the runtime-wide logging sink for eventflux: junctions,
// the snapshot service, and the aggregator/pattern anomaly counters all log
// through the package-level Debug/Info/Warn/Error functions rather than
// taking a Logger dependency, so an embedder can redirect or silence every
// component with a single SetDefault call.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Level orders the severities a Logger can be configured to emit.
type Level int

const (
	// DEBUG surfaces per-event and per-chunk detail; noisy under load.
	DEBUG Level = iota
	// INFO surfaces lifecycle events: runtime start, snapshot persisted.
	INFO
	// WARN surfaces recoverable anomalies: dropped chunks, skipped state.
	WARN
	// ERROR surfaces subscriber failures and other delivery faults.
	ERROR
	// OFF disables logging entirely.
	OFF
)

// String returns the level's name as it appears in a log line.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case OFF:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Logger is the interface every eventflux component logs through.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	// SetLevel changes the minimum severity this Logger emits.
	SetLevel(level Level)
	// Named returns a Logger that prefixes every line with component,
	// e.g. logger.GetDefault().Named("junction").Warn("queue full") logs
	// "[junction] queue full" instead of every call site formatting its
	// own "junction %s: ..." prefix by hand.
	Named(component string) Logger
}

// defaultLogger writes formatted, leveled lines to an io.Writer.
type defaultLogger struct {
	level  Level
	prefix string
	logger *log.Logger
}

// NewLogger creates a Logger that writes level >= level to output.
//
// Example:
//
//	log := logger.NewLogger(logger.INFO, os.Stdout)
//	log.Info("runtime %q started", name)
func NewLogger(level Level, output io.Writer) Logger {
	return &defaultLogger{
		level:  level,
		logger: log.New(output, "", 0),
	}
}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	if l.level <= DEBUG {
		l.log(DEBUG, format, args...)
	}
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	if l.level <= INFO {
		l.log(INFO, format, args...)
	}
}

func (l *defaultLogger) Warn(format string, args ...interface{}) {
	if l.level <= WARN {
		l.log(WARN, format, args...)
	}
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	if l.level <= ERROR {
		l.log(ERROR, format, args...)
	}
}

func (l *defaultLogger) SetLevel(level Level) {
	l.level = level
}

func (l *defaultLogger) Named(component string) Logger {
	return &defaultLogger{level: l.level, prefix: component, logger: l.logger}
}

func (l *defaultLogger) log(level Level, format string, args ...interface{}) {
	if l.level == OFF {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	message := fmt.Sprintf(format, args...)
	var logLine string
	if l.prefix != "" {
		logLine = fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, level.String(), l.prefix, message)
	} else {
		logLine = fmt.Sprintf("[%s] [%s] %s", timestamp, level.String(), message)
	}
	l.logger.Println(logLine)
}

// discardLogger implements Logger by dropping every call; used to silence
// a runtime entirely without branching call sites on a nil Logger.
type discardLogger struct{}

// NewDiscardLogger returns a Logger that discards all output.
func NewDiscardLogger() Logger {
	return &discardLogger{}
}

func (d *discardLogger) Debug(format string, args ...interface{}) {}
func (d *discardLogger) Info(format string, args ...interface{})  {}
func (d *discardLogger) Warn(format string, args ...interface{})  {}
func (d *discardLogger) Error(format string, args ...interface{}) {}
func (d *discardLogger) SetLevel(level Level)                     {}
func (d *discardLogger) Named(component string) Logger             { return d }

// defaultInstance is the logger every package-level function below writes
// through; embedders redirect it with SetDefault before CreateRuntime.
var defaultInstance Logger = NewLogger(INFO, os.Stdout)

// SetDefault replaces the package-level logger used by Debug/Info/Warn/Error.
func SetDefault(l Logger) {
	defaultInstance = l
}

// GetDefault returns the current package-level logger.
func GetDefault() Logger {
	return defaultInstance
}

// Debug logs through the default logger.
func Debug(format string, args ...interface{}) {
	defaultInstance.Debug(format, args...)
}

// Info logs through the default logger.
func Info(format string, args ...interface{}) {
	defaultInstance.Info(format, args...)
}

// Warn logs through the default logger.
func Warn(format string, args ...interface{}) {
	defaultInstance.Warn(format, args...)
}

// Error logs through the default logger.
func Error(format string, args ...interface{}) {
	defaultInstance.Error(format, args...)
}
