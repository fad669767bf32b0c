// Package logging provides structured logging for arbiter.
//
// It wraps log/slog with a JSON handler and a small set of child-logger
// helpers that attach the arbitration context to every entry: the resource
// identifier, the pid a mediator represents and the peer a message concerns.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/arbiter", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	mlog := logger.WithResource("ir-remote").WithPID(os.Getpid())
//	mlog.WithPeer(200).Info("access request denied", "access", "blocking")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"access request denied","resource":"ir-remote","pid":4711,"peer":200,"access":"blocking"}
//
// # Log Rotation
//
// A mediator host may run for weeks. [NewLoggerWithRotation] writes through a
// [RotatingWriter] that renames arbiter.log to arbiter.log.1 (shifting older
// backups up) once the size limit is reached, optionally gzip-compressing
// the rotated file.
//
// # Testing
//
// [NopLogger] discards everything and is what every component falls back to
// when it is handed a nil logger.
package logging
