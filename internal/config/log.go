package config

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Writer returns the log destination: a rotating file when log.file is
// set, stderr otherwise. The caller closes the returned closer.
func (c LogConfig) Writer() (io.Writer, io.Closer) {
	if c.File == "" {
		return os.Stderr, nopCloser{}
	}
	lj := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}
	return lj, lj
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Loggers builds the per-component loggers sharing one destination.
type Loggers struct {
	out io.Writer
}

// NewLoggers returns loggers writing to out.
func NewLoggers(out io.Writer) *Loggers {
	return &Loggers{out: out}
}

// For returns a logger prefixed with "[component] ".
func (l *Loggers) For(component string) *log.Logger {
	return log.New(l.out, "["+component+"] ", log.LstdFlags)
}
