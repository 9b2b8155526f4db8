// Package logger provides structured logging on top of zerolog.
//
// A global logger is created lazily with level "info" and can be replaced
// with Initialize (from configuration) or SetLogger (in tests). Every line
// carries app=wellbin and the build version. Console output goes to stderr;
// an optional log file receives the same lines.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	logger.WithField("study_type", "FhirStudy").Info("Discovery finished")
//
// Passwords are never logged, and e-mail addresses only through MaskEmail.
// TestLogger captures messages for assertions.
package logger
