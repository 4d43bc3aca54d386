// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optim

import (
	"fmt"
	"io"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only one line when the solver terminates
	LogLast LogLevel = 0
	// LogEval print also f and |g| every iteration
	LogEval LogLevel = 1
	// LogTrace print details of every candidate step (ratio, region, damping)
	LogTrace LogLevel = 99
	// LogVerbose print also the parameter and gradient vectors
	LogVerbose LogLevel = 101
)

// Logger handles the diagnostic output of a solver.
// A nil *Logger is valid and disables all output.
// Note the writers must be thread-safe when shared between solvers.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
	Out   io.Writer // Writer for vector data, falls back to Msg.
}

// Enabled reports whether messages of the given level are written.
func (l *Logger) Enabled(level LogLevel) bool {
	return l != nil && l.Msg != nil && l.Level >= level
}

// Logf writes a formatted message.
func (l *Logger) Logf(format string, a ...any) {
	if l == nil || l.Msg == nil {
		return
	}
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

// Vector writes a named vector to Out (or Msg).
func (l *Logger) Vector(name string, v []float64) {
	if l == nil {
		return
	}
	w := l.Out
	if w == nil {
		w = l.Msg
	}
	if w == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "%s = %.6e\n", name, v)
}
