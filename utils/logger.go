/*
 * Copyright 2025 tomoncle.
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

package utils

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Logger = logrus.Logger

var (
	defaultLevel     = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}
	consoleLogFormat = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	fileLogEnabled   = EnvDefaultBool("FILE_LOG_ENABLED", false)
	fileLogDir       = EnvDefaultString("FILE_LOG_DIR", "logs")
	fileLogMaxAge    = 0
)

// ConfigureFileLog makes loggers created afterwards also write to per-level
// files under dir/<yyyy-mm-dd>/<level>.log. Day directories older than
// maxAgeDays are removed on rollover; zero keeps them all. An empty dir
// turns file output off.
func ConfigureFileLog(dir string, maxAgeDays int) {
	fileLogEnabled = dir != ""
	if dir != "" {
		fileLogDir = dir
	}
	fileLogMaxAge = maxAgeDays
}

// ConfigureConsoleLogFormat switches newly created loggers between "text" and "json".
func ConfigureConsoleLogFormat(format string) {
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func RegisterLogger(name string, l *logrus.Logger) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	loggerRegistry[name] = l
}

// SetLoggerLevel changes the level of a registered logger. It reports false
// when no logger is registered under name.
func SetLoggerLevel(name string, lvlStr string) bool {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(lvlStr))
	return true
}

// ConfigureLogLevel sets the level of every registered logger and of loggers
// created afterwards.
func ConfigureLogLevel(levelStr string) {
	lvl := ParseLogLevel(levelStr)
	defaultLevel = lvl
	loggerRegistryMu.RLock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
	loggerRegistryMu.RUnlock()
}

// NewLogger returns the logger registered under name, creating it on first use.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.RLock()
	existing, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if ok {
		return existing
	}

	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(defaultLevel)
	l.SetReportCaller(true)
	if consoleLogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return "", shortCaller(f.File, f.Line)
			},
		})
	} else {
		l.SetFormatter(&Log4jFormatter{LoggerName: name, TimestampFormat: "2006-01-02 15:04:05.000", NameWidth: 8})
	}
	if fileLogEnabled {
		AddFileHook(l, name, fileLogDir, fileLogMaxAge)
	}
	RegisterLogger(name, l)
	return l
}

// Log4jFormatter renders "time LEVEL [name] caller : message k=v ...".
type Log4jFormatter struct {
	LoggerName      string
	TimestampFormat string
	NameWidth       int
}

func (f *Log4jFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(entry.Time.Format(f.TimestampFormat))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%-5s", strings.ToUpper(entry.Level.String())))
	b.WriteString(" [")
	b.WriteString(fmt.Sprintf("%-*s", f.NameWidth, f.LoggerName))
	b.WriteString("] ")
	if entry.HasCaller() {
		b.WriteString(shortCaller(entry.Caller.File, entry.Caller.Line))
		b.WriteString(" : ")
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// levelWriterHook copies each entry to the writer of its level.
type levelWriterHook struct {
	writers   map[logrus.Level]io.Writer
	formatter logrus.Formatter
}

func (h *levelWriterHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *levelWriterHook) Fire(e *logrus.Entry) error {
	w, ok := h.writers[e.Level]
	if !ok {
		return nil
	}
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// dailyWriter appends to dir/<date>/<level>.log and reopens on a new day.
type dailyWriter struct {
	dir        string
	level      string
	maxAgeDays int

	mu   sync.Mutex
	date string
	file *os.File
}

func (w *dailyWriter) Write(p []byte) (int, error) {
	today := time.Now().Format("2006-01-02")
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil || w.date != today {
		if w.file != nil {
			_ = w.file.Close()
			w.file = nil
		}
		day := filepath.Join(w.dir, today)
		if err := os.MkdirAll(day, 0o755); err != nil {
			return 0, err
		}
		f, err := os.OpenFile(filepath.Join(day, w.level+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, err
		}
		w.file, w.date = f, today
		w.prune()
	}
	return w.file.Write(p)
}

func (w *dailyWriter) prune() {
	if w.maxAgeDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -w.maxAgeDays).Format("2006-01-02")
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if _, err := time.Parse("2006-01-02", e.Name()); err != nil || !e.IsDir() {
			continue
		}
		if e.Name() < cutoff {
			_ = os.RemoveAll(filepath.Join(w.dir, e.Name()))
		}
	}
}

// AddFileHook attaches per-level file output to l. Fatal and panic entries
// share error.log.
func AddFileHook(l *logrus.Logger, name, dir string, maxAgeDays int) {
	writer := func(level string) io.Writer {
		return &dailyWriter{dir: dir, level: level, maxAgeDays: maxAgeDays}
	}
	errW := writer("error")
	l.AddHook(&levelWriterHook{
		writers: map[logrus.Level]io.Writer{
			logrus.TraceLevel: writer("trace"),
			logrus.DebugLevel: writer("debug"),
			logrus.InfoLevel:  writer("info"),
			logrus.WarnLevel:  writer("warn"),
			logrus.ErrorLevel: errW,
			logrus.FatalLevel: errW,
			logrus.PanicLevel: errW,
		},
		formatter: &Log4jFormatter{LoggerName: name, TimestampFormat: "2006-01-02 15:04:05.000", NameWidth: 8},
	})
}

func shortCaller(file string, line int) string {
	dir := filepath.Base(filepath.Dir(file))
	return dir + "/" + filepath.Base(file) + ":" + strconv.Itoa(line)
}

func EnvDefaultString(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}
