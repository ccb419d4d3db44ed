package models

import "time"

// Category groups a log record by the subsystem that produced it.
type Category string

const (
	CategoryStrategy Category = "STRATEGY"
	CategoryTrade    Category = "TRADE"
	CategoryPosition Category = "POSITION"
	CategoryNews     Category = "NEWS"
	CategoryError    Category = "ERROR"
)

// Level is the severity of a log record.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// LogRecord is one line of a bot's append-only log.
type LogRecord struct {
	TsUTC    time.Time `json:"ts_utc"`
	BotID    int64     `json:"bot_id"`
	Level    Level     `json:"level"`
	Category Category  `json:"category"`
	Message  string    `json:"message"`
}
