package internal

import (
	"fmt"
	"log"
	"time"
)

type Importance string

const (
	Info    Importance = " "
	Warning Importance = "?"
	Error   Importance = "!"
	Raw     Importance = "-"
)

type Logger struct {
	database       Database
	messageService MessageService
	location       *time.Location
	debugMode      bool
	writer         chan *LogEvent
}

type LogEvent struct {
	Importance Importance
	Message    *FeatureLogMessage
}

func NewLogger(location *time.Location) *Logger {
	if location == nil {
		location = time.UTC
	}
	logger := &Logger{
		location: location,
		writer:   make(chan *LogEvent, 100),
	}
	go logger.startWriter()
	return logger
}

func (l *Logger) startWriter() {
	for event := range l.writer {
		message := event.Message
		l.logLine(event.Importance, fmt.Sprintf("[%s] %s: %s", message.Id, message.Feature, message.Text))

		if l.database != nil {
			if err := l.database.WriteLogMessage(message); err != nil {
				l.logLine(Error, fmt.Sprintln("write log to database failed:", err))
			}
		}
		if l.messageService != nil && event.Importance != Raw {
			if err := l.messageService.Send(message); err != nil {
				l.logLine(Error, fmt.Sprintln("push log message failed:", err))
			}
		}
	}
}

func (l *Logger) SetDebugMode(debugMode bool) {
	l.debugMode = debugMode
}

func (l *Logger) SetDatabase(database Database) {
	l.database = database
}

func (l *Logger) SetMessageService(messageService MessageService) {
	l.messageService = messageService
}

func logTime(t time.Time) string {
	return fmt.Sprintf("%d-%02d-%02d %02d:%02d:%02d", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}

func (l *Logger) FeatureEvent(feature, id, text string) {
	l.logEvent(Info, l.newFeatureLogMessage(feature, id, text))
}

func (l *Logger) logEvent(importance Importance, message *FeatureLogMessage) {
	if message.Id == "" {
		message.Id = "*"
	}
	message.Importance = string(importance)
	l.writer <- &LogEvent{
		Importance: importance,
		Message:    message,
	}
}

func (l *Logger) Debug(text string) {
	if l.debugMode {
		l.logEvent(Info, l.newFeatureLogMessage("debug", "", text))
	}
}

func (l *Logger) Warn(text string) {
	l.logEvent(Warning, l.newFeatureLogMessage("warning", "", text))
}

func (l *Logger) Error(text string, err error) {
	l.logEvent(Error, l.newFeatureLogMessage("error", "", fmt.Sprintf("%s: %s", text, err)))
}

func (l *Logger) RawDataEvent(direction, data string) {
	if l.debugMode {
		l.logEvent(Raw, l.newFeatureLogMessage("raw", "", fmt.Sprintf("%s: %s", direction, data)))
	}
}

func (l *Logger) logLine(importance Importance, text string) {
	if importance == Info && l.database != nil {
		return
	}
	log.Printf("%s %s", importance, text)
}

func (l *Logger) newFeatureLogMessage(feature, id, text string) *FeatureLogMessage {
	now := time.Now()
	return &FeatureLogMessage{
		Time:      logTime(now.In(l.location)),
		TimeStamp: now.UTC(),
		Text:      text,
		Feature:   feature,
		Id:        id,
	}
}
