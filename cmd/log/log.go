// Package log provides the logger shared by all commands.
package log

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

var Log logr.Logger = func() logr.Logger {
	zapLog, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return zapr.NewLogger(zapLog)
}()

func Error(err error, msg string, keysAndValues ...interface{}) {
	Log.Error(err, msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...interface{}) {
	Log.Info(msg, keysAndValues...)
}
