// Package logger declares the logging interface the rest of the module
// codes against, and holds the package-level loggers each subsystem writes
// to. A concrete implementation (logger/zap) fills these vars during
// startup; apart from config, which logs through zap's global sugared
// logger, nothing outside this package and its implementation imports zap
// directly.
package logger

import (
	"go.uber.org/zap/zapcore"
	gorml "gorm.io/gorm/logger"
)

// Logger is the interface every subsystem logger satisfies. Subsystems
// never depend on *zap.Logger directly so the backend stays swappable.
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)

	Debugw(msg string, keysValues ...any)
	Infow(msg string, keysValues ...any)
	Warnw(msg string, keysValues ...any)
	Errorw(msg string, keysValues ...any)
	Fatalw(msg string, keysValues ...any)

	With(fields ...string) Logger
	WithObject(name string, obj zapcore.ObjectMarshaler) Logger
}

// Subsystem loggers, wired up by logger/zap.Init during engine startup.
// Each corresponds to a distinct rolling log file in non-dev modes.
var (
	Engine   Logger // document/query/relationship orchestration
	Adapter  Logger // adapter/gormadapter DDL and DML
	Cache    Logger // cache.Cache reads, writes, purges
	Events   Logger // events listener dispatch
	Metadata Logger // _metadata catalog bootstrap and mutation

	Gorm gorml.Interface // set by logger/zap.Init
)
