package core

// Logger is implemented by every log sink of the app.
// args may hold errors, extra data (map[string]interface{}) and the Actor the log relates to.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
