package server

import (
	"encoding/json"
	"io"
	"net/http"
	"runtime"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var Logger *logrus.Logger = logrus.StandardLogger()

// NewLogger returns a logger that logs at the level given by verbosity (see Verbosity),
// as JSON if json is set. A quiet logger discards everything.
func NewLogger(verbosity int, quiet bool, json bool) *logrus.Logger {
	logger := logrus.New()

	if quiet {
		logger.Out = io.Discard
		return logger
	}

	logger.Level = Verbosity(verbosity)
	if json {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&prefixed.TextFormatter{
			FullTimestamp: true,
			DisableColors: runtime.GOOS == "windows",
		})
	}
	return logger
}

// Verbosity maps 0 to info, 1 to debug and anything higher to trace.
func Verbosity(level int) logrus.Level {
	switch {
	case level == 1:
		return logrus.DebugLevel
	case level > 1:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// LogError logs err, including its stack trace if it has one and trace logging is enabled,
// and returns it.
func LogError(err error) error {
	return logError(logrus.ErrorLevel, err)
}

func LogWarning(err error) error {
	return logError(logrus.WarnLevel, err)
}

func logError(level logrus.Level, err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if errors.As(err, &e) && Logger.IsLevelEnabled(logrus.TraceLevel) {
		Logger.Log(level, e.ErrorStack())
	} else {
		Logger.Log(level, err.Error())
	}
	return err
}

// NewRemoteError converts an error and an explaining message to a *RemoteError.
func NewRemoteError(err Error, message string) *RemoteError {
	Logger.Errorf("Error: %d %s %s", err.Status, err.Type, message)
	return &RemoteError{
		Status:      err.Status,
		Description: err.Description,
		ErrorName:   string(err.Type),
		Message:     message,
	}
}

// JsonResponse JSON-marshals the specified object or error
// and returns it along with a suitable HTTP status code
func JsonResponse(v interface{}, err *RemoteError) (int, []byte) {
	msg := v
	status := http.StatusOK
	if err != nil {
		msg = err
		status = err.Status
	}
	b, e := json.MarshalIndent(msg, "", "  ")
	if e != nil {
		Logger.Error("Failed to serialize response: ", e.Error())
		return http.StatusInternalServerError, nil
	}
	return status, b
}

// WriteError writes the specified error and explaining message as JSON to the http.ResponseWriter.
func WriteError(w http.ResponseWriter, err Error, msg string) {
	WriteResponse(w, nil, NewRemoteError(err, msg))
}

// WriteJson writes the specified object as JSON to the http.ResponseWriter.
func WriteJson(w http.ResponseWriter, object interface{}) {
	WriteResponse(w, object, nil)
}

// WriteResponse writes the specified object or error as JSON to the http.ResponseWriter.
func WriteResponse(w http.ResponseWriter, object interface{}, rerr *RemoteError) {
	status, bts := JsonResponse(object, rerr)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bts)
}
