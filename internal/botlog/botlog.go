// Package botlog writes each bot's append-only, newline-delimited JSON
// log (bot_<id>.log per spec §4.8).
package botlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spotfleet/spotfleet/internal/models"
)

// Logger appends LogRecords for one bot to its dedicated file and
// mirrors them onto the process-wide logrus logger.
type Logger struct {
	mu     sync.Mutex
	f      *os.File
	botID  int64
	shared *logrus.Logger
}

// Open opens (creating if needed) bot_<id>.log under dataDir in append mode.
func Open(dataDir string, botID int64, shared *logrus.Logger) (*Logger, error) {
	path := filepath.Join(dataDir, fmt.Sprintf("bot_%d.log", botID))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening bot log %s: %w", path, err)
	}
	return &Logger{f: f, botID: botID, shared: shared}, nil
}

func (l *Logger) write(level models.Level, category models.Category, msg string) {
	rec := models.LogRecord{
		TsUTC:    time.Now().UTC(),
		BotID:    l.botID,
		Level:    level,
		Category: category,
		Message:  msg,
	}

	l.mu.Lock()
	line, err := json.Marshal(rec)
	if err == nil {
		l.f.Write(append(line, '\n'))
	}
	l.mu.Unlock()

	entry := l.shared.WithFields(logrus.Fields{
		"bot_id":   l.botID,
		"category": category,
	})
	switch level {
	case models.LevelError:
		entry.Error(msg)
	case models.LevelWarn:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
}

func (l *Logger) Info(category models.Category, format string, args ...interface{}) {
	l.write(models.LevelInfo, category, fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(category models.Category, format string, args ...interface{}) {
	l.write(models.LevelWarn, category, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(category models.Category, format string, args ...interface{}) {
	l.write(models.LevelError, category, fmt.Sprintf(format, args...))
}

// Tail returns the last n records from the log file, oldest first.
func Tail(dataDir string, botID int64, n int) ([]models.LogRecord, error) {
	path := filepath.Join(dataDir, fmt.Sprintf("bot_%d.log", botID))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading bot log %s: %w", path, err)
	}

	var all []models.LogRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var rec models.LogRecord
		if err := dec.Decode(&rec); err != nil {
			break
		}
		all = append(all, rec)
	}

	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
