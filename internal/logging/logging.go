// Package logging builds the process log output: stderr, plus a rotating
// file when one is configured. Components get their own *log.Logger with a
// bracketed prefix, e.g. "[engine] ".
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures the log file. An empty File logs to the console only.
type Config struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logs owns the shared log output.
type Logs struct {
	out  io.Writer
	file *lumberjack.Logger
	flag int
}

// New creates the log output. console is usually os.Stderr; nil discards
// console output.
func New(cfg Config, console io.Writer) *Logs {
	if console == nil {
		console = io.Discard
	}
	l := &Logs{out: console, flag: log.LstdFlags}
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		l.out = io.MultiWriter(console, l.file)
	}
	return l
}

// Stderr logs to the console only.
func Stderr() *Logs {
	return New(Config{}, os.Stderr)
}

// Discard drops everything.
func Discard() *Logs {
	return New(Config{}, nil)
}

// Logger returns a logger for one component.
func (l *Logs) Logger(component string) *log.Logger {
	return log.New(l.out, "["+component+"] ", l.flag)
}

// Writer returns the combined output.
func (l *Logs) Writer() io.Writer {
	return l.out
}

// Rotate starts a new log file. It is a no-op without a file.
func (l *Logs) Rotate() error {
	if l.file == nil {
		return nil
	}
	return l.file.Rotate()
}

// Close closes the log file.
func (l *Logs) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
