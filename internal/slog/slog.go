/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Package slog wraps a *logrus.Logger with the four leveled helpers used
// throughout the runtime, the way the teacher's device.NewLogger does for
// its per-device loggers.
package slog

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Level selects which of the four helpers actually emit.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelNormal
	LevelVerbose
)

// ParseLevel maps the CLI/config spelling ("silent", "error", "normal",
// "verbose"/"debug") onto a Level, defaulting to LevelError for anything else.
func ParseLevel(s string) Level {
	switch s {
	case "verbose", "debug":
		return LevelVerbose
	case "normal", "info":
		return LevelNormal
	case "silent":
		return LevelSilent
	case "error":
		return LevelError
	default:
		return LevelError
	}
}

// Logger is a component-scoped leveled logger: every line carries a "(prefix) "
// component tag the way the teacher tags its v4/v6 device loggers.
type Logger struct {
	level  Level
	prefix string
	base   *logrus.Logger
}

// New builds a Logger writing to stderr at level, tagging every line with
// "(prefix) ".
func New(level Level, prefix string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	// Level filtering is done by Logger itself; let every logrus level through
	// so Verbosef's Debugf calls are not dropped by logrus's Info default.
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	return &Logger{level: level, prefix: prefix, base: base}
}

func (l *Logger) tag(format string) string {
	return fmt.Sprintf("(%s) %s", l.prefix, format)
}

// Verbosef logs at LevelVerbose and above.
func (l *Logger) Verbosef(format string, args ...interface{}) {
	if l.level < LevelVerbose {
		return
	}
	l.base.Debugf(l.tag(format), args...)
}

// Normalf logs at LevelNormal and above — the ordinary operational trace
// (registrations, sweeps, federation re-registration).
func (l *Logger) Normalf(format string, args ...interface{}) {
	if l.level < LevelNormal {
		return
	}
	l.base.Infof(l.tag(format), args...)
}

// Errorf always logs unless the logger is LevelSilent.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.level < LevelError {
		return
	}
	l.base.Errorf(l.tag(format), args...)
}

// Fatalf logs the message regardless of level and exits the process, used
// only for the startup failures enumerated as Fatal (main socket open
// failure, management listen failure).
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.base.Errorf(l.tag(format), args...)
	os.Exit(1)
}

// SetLevel mutates the logger's level in place, the way set_verbose changes
// verbosity at runtime for every holder of this *Logger.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

// Level reports the logger's current level, used by get_verbose.
func (l *Logger) Level() Level { return l.level }
