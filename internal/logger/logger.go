// Package logger provides the four leveled loggers shared by every
// package in this module.
package logger

import (
	"io"
	"log"
)

var (
	Debug   *log.Logger
	Info    *log.Logger
	Warning *log.Logger
	Error   *log.Logger
)

func init() {
	LogInit(io.Discard, io.Discard, io.Discard, log.Writer())
}

// LogInit points each level at its own writer. Passing io.Discard for a
// level silences it.
func LogInit(debugHandle, infoHandle, warningHandle, errorHandle io.Writer) {
	Debug = log.New(debugHandle, "DEBUG: ", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)
	Info = log.New(infoHandle, "INFO: ", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)
	Warning = log.New(warningHandle, "WARNING: ", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)
	Error = log.New(errorHandle, "ERROR: ", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)
}
