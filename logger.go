package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logFile *os.File
var logPath = "/var/nodedebugger.log"

// SetupLogger routes logs to a file; stdout belongs to the DAP transport
// when the adapter runs under an IDE. Falls back to stderr when the file
// cannot be opened.
func SetupLogger() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		logrus.SetOutput(os.Stderr)
		return
	}
	logFile = file
	logrus.SetOutput(logFile)
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Close()
	}
}
