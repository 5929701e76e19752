package services

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier receives user-facing notices such as "upload finished".
type Notifier interface {
	Notify(level Level, msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, msg string)

func (f NotifierFunc) Notify(level Level, msg string) {
	f(level, msg)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Level, string) {}
