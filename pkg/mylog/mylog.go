// Package mylog is a levelled logger with an optional file output.
//
// Each message level returns a context exposing Printf, so the result can be
// given to any component expecting a Printf logger:
//
//	log.Debug().Printf("[PAGE] %s", url)
package mylog

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Logger is the minimal interface used across the module
type Logger interface {
	Printf(string, ...interface{})
}

type Level int

const (
	LevelFatal Level = iota - 1
	LevelError
	LevelInfo
	LevelTrace
	LevelDebug
)

var levelStrings = map[string]Level{
	"FATAL": LevelFatal,
	"ERROR": LevelError,
	"INFO":  LevelInfo,
	"TRACE": LevelTrace,
	"DEBUG": LevelDebug,
}

var prefixes = map[Level]string{
	LevelFatal: "[FATAL] ",
	LevelError: "[ERROR] ",
	LevelInfo:  "[INFO ] ",
	LevelTrace: "[TRACE] ",
	LevelDebug: "[DEBUG] ",
}

// ParseLevel converts a level name into a Level
func ParseLevel(lvl string) (Level, error) {
	level, ok := levelStrings[strings.ToUpper(strings.TrimSpace(lvl))]
	if !ok {
		return LevelError, fmt.Errorf("invalid log level %q", lvl)
	}
	return level, nil
}

func (l Level) String() string {
	for s, v := range levelStrings {
		if v == l {
			return s
		}
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

type MyLog struct {
	mu                        sync.Mutex
	logLevel                  Level
	consoleLogger, fileLogger Logger
	exit                      func(int)
}

// NewLog return a MyLog structure.
// When a file logger is provided, the console logger only gets errors.
func NewLog(lvl string, consoleLogger, fileLogger Logger) (*MyLog, error) {
	level, err := ParseLevel(lvl)
	if err != nil {
		return nil, err
	}
	return &MyLog{
		logLevel:      level,
		consoleLogger: consoleLogger,
		fileLogger:    fileLogger,
		exit:          os.Exit,
	}, nil
}

// NewConsole logs on w every message at or below the given level.
func NewConsole(lvl Level, w io.Writer) *MyLog {
	return &MyLog{
		logLevel:   lvl,
		fileLogger: log.New(w, "", log.LstdFlags),
		exit:       os.Exit,
	}
}

// Discard returns a logger that drops everything but fatal messages
func Discard() *MyLog {
	return &MyLog{
		logLevel: LevelFatal,
		exit:     os.Exit,
	}
}

// Fatal prepare the output of FATAL message
func (l *MyLog) Fatal() logcontext {
	return logcontext{l, LevelFatal}
}

// Error prepare the output of ERROR message
func (l *MyLog) Error() logcontext {
	return logcontext{l, LevelError}
}

// Info prepare the output of INFO message
func (l *MyLog) Info() logcontext {
	return logcontext{l, LevelInfo}
}

// Trace prepare the output of TRACE message
func (l *MyLog) Trace() logcontext {
	return logcontext{l, LevelTrace}
}

// Debug prepare the output of DEBUG message
func (l *MyLog) Debug() logcontext {
	return logcontext{l, LevelDebug}
}

// IsDebug return true if log level is DEBUG
func (l *MyLog) IsDebug() bool {
	if l == nil {
		return true
	}
	return l.logLevel >= LevelDebug
}

// logcontext get the level of current message
type logcontext struct {
	mylog *MyLog
	lvl   Level
}

// Printf print message on configured writers.
// When the message is FATAL, the message is written and the program exits.
// If the logger isn't initialized, it logs to the standard logger.
func (c logcontext) Printf(fmt string, args ...interface{}) {
	if c.mylog == nil {
		if c.lvl == LevelFatal {
			log.Fatalf(prefixes[c.lvl]+fmt, args...)
		} else {
			log.Printf(prefixes[c.lvl]+fmt, args...)
		}
		return
	}
	c.mylog.mu.Lock()
	defer c.mylog.mu.Unlock()
	if c.lvl <= LevelError && c.mylog.consoleLogger != nil {
		c.mylog.consoleLogger.Printf(prefixes[c.lvl]+fmt, args...)
	}
	if c.mylog.fileLogger != nil && c.lvl <= c.mylog.logLevel {
		c.mylog.fileLogger.Printf(prefixes[c.lvl]+fmt, args...)
	}
	if c.lvl == LevelFatal {
		if c.mylog.consoleLogger == nil && c.mylog.fileLogger == nil {
			log.Printf(prefixes[c.lvl]+fmt, args...)
		}
		c.mylog.exit(1)
	}
}
