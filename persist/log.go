package persist

import (
	"log"
	"os"

	"github.com/dreamware/brightvault/build"
)

// A Logger wraps a standard library logger pointed at a file on disk, and
// writes a STARTUP line when opened and a SHUTDOWN line when closed so that
// gaps in the log (crashes, unclean restarts) are visible by inspection.
type Logger struct {
	*log.Logger
	file *os.File
}

// NewLogger returns a Logger that appends to filename, creating it if it
// does not exist.
func NewLogger(filename string) (*Logger, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0660)
	if err != nil {
		return nil, err
	}
	logger := log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile|log.LUTC)
	logger.Println("STARTUP: log opened")
	return &Logger{Logger: logger, file: file}, nil
}

// Close logs a shutdown message and closes the underlying file.
func (l *Logger) Close() error {
	l.Println("SHUTDOWN: log closed")
	return l.file.Close()
}

// Critical logs a critical-severity message and calls build.Critical on the
// same message, which panics when running in a debug/testing build.
func (l *Logger) Critical(v ...interface{}) {
	l.Println(append([]interface{}{"CRITICAL:"}, v...)...)
	build.Critical(v...)
}

// Severe logs a severe-severity message.
func (l *Logger) Severe(v ...interface{}) {
	l.Println(append([]interface{}{"SEVERE:"}, v...)...)
}
