package errors

import (
	"github.com/sirupsen/logrus"
)

// LogError logs an error at error level with the structured context carried
// by an AppError, if any.
func LogError(logger *logrus.Logger, err error, message string, fields ...logrus.Fields) {
	entryFor(logger, err, fields...).Error(message)
}

// LogWarn logs an error at warning level with the structured context carried
// by an AppError, if any.
func LogWarn(logger *logrus.Logger, err error, message string, fields ...logrus.Fields) {
	entryFor(logger, err, fields...).Warn(message)
}

func entryFor(logger *logrus.Logger, err error, fields ...logrus.Fields) *logrus.Entry {
	entry := logger.WithError(err)

	if appErr, ok := err.(*AppError); ok {
		entry = entry.WithFields(logrus.Fields{
			"error_code": appErr.Code,
			"retryable":  appErr.Retryable,
		})
		for k, v := range appErr.Context {
			entry = entry.WithField(k, v)
		}
	}

	for _, field := range fields {
		entry = entry.WithFields(field)
	}
	return entry
}
