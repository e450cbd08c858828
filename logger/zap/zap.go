// Package zap is the concrete structured-logging backend: it builds
// *zap.Logger instances per subsystem, each writing to its own rolling
// file via lumberjack, and wires them into the logger package's exported
// vars.
package zap

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forbearing/docdb/config"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	gorml "gorm.io/gorm/logger"
)

var (
	logFile       string
	logLevel      string
	logFormat     string
	logMaxAge     int
	logMaxSize    int
	logMaxBackups int
)

// Option configures encoder behavior for constructors.
// DisableMsg/DisableLevel hide "msg" and "level" fields; TSLayout sets time format.
type Option struct {
	DisableMsg   bool
	DisableLevel bool
	TSLayout     string
}

// Init initializes global loggers from config and wires subsystem loggers.
// The returned error is always nil.
func Init() error {
	readConf()
	zap.ReplaceGlobals(zap.New(
		zapcore.NewCore(newLogEncoder(), newLogWriter(), newLogLevel()),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.FatalLevel),
	))

	logger.Engine = New("engine.log")
	logger.Adapter = New("adapter.log")
	logger.Cache = New("cache.log")
	logger.Events = New("events.log")
	logger.Metadata = New("metadata.log")
	logger.Gorm = NewGorm("gorm.log")

	return nil
}

func Clean() {
	_ = zap.L().Sync()
	logs := []logger.Logger{
		logger.Engine,
		logger.Adapter,
		logger.Cache,
		logger.Events,
		logger.Metadata,
	}
	for _, log := range logs {
		if l, ok := log.(*Logger); ok {
			_ = l.zlog.Sync()
		}
	}
	if glog, ok := logger.Gorm.(*GormLogger); ok {
		_ = glog.l.zlog.Sync()
	}
}

// New builds a logger.Logger backed by *zap.Logger.
// filename: target log file name ("/dev/stdout" for console)
// opts: optional encoder options
func New(filename string, opts ...Option) *Logger {
	readConf()
	if len(filename) > 0 {
		logFile = filename
	}
	l := zap.New(
		zapcore.NewCore(newLogEncoder(opts...), newLogWriter(opts...), newLogLevel(opts...)),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.FatalLevel),
	)
	return &Logger{zlog: l}
}

// NewGorm builds a gorm logger.Interface.
// filename: target log file name ("/dev/stdout" for console)
func NewGorm(filename string) gorml.Interface {
	readConf()
	if len(filename) > 0 {
		logFile = filename
	}
	l := zap.New(
		zapcore.NewCore(newLogEncoder(), newLogWriter(), newLogLevel()),
		zap.AddCaller(),
		zap.AddCallerSkip(5),
		zap.AddStacktrace(zapcore.FatalLevel),
	)
	return &GormLogger{l: &Logger{zlog: l}}
}

// NewStdLog builds a *log.Logger backed by *zap.Logger.
func NewStdLog() *log.Logger {
	return zap.NewStdLog(NewZap(""))
}

// NewZap builds a *zap.Logger with optional filename and options.
// filename: target log file name ("/dev/stdout" for console)
// opts: optional encoder options
func NewZap(filename string, opts ...Option) *zap.Logger {
	readConf()
	if len(filename) > 0 {
		logFile = filename
	}
	return zap.New(
		zapcore.NewCore(newLogEncoder(opts...), newLogWriter(opts...), newLogLevel(opts...)),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.FatalLevel))
}

// NewSugared builds a *zap.SugaredLogger with optional filename and options.
// filename: target log file name ("/dev/stdout" for console)
// opts: optional encoder options
func NewSugared(filename string, opts ...Option) *zap.SugaredLogger {
	readConf()
	if len(filename) > 0 {
		logFile = filename
	}
	return zap.New(
		zapcore.NewCore(newLogEncoder(opts...), newLogWriter(opts...), newLogLevel(opts...)),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.FatalLevel)).Sugar()
}

// newLogWriter selects log sink (stdout/stderr or rolling file).
// opts: reserved for future expansion
func newLogWriter(_ ...Option) zapcore.WriteSyncer {
	switch strings.TrimSpace(logFile) {
	case "/dev/stdout":
		return zapcore.AddSync(os.Stdout)
	case "/dev/stderr":
		return zapcore.AddSync(os.Stderr)
	case "":
		return zapcore.AddSync(os.Stdout)
	default:
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(config.App.Dir, logFile),
			MaxAge:     logMaxAge,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackups,
			LocalTime:  true,
			Compress:   false,
		})
	}
}

// newLogLevel parses configured level; defaults to Info.
// opts: reserved for future expansion
func newLogLevel(_ ...Option) zapcore.Level {
	if len(logLevel) == 0 {
		return zapcore.InfoLevel
	}
	level := new(zapcore.Level)
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return zapcore.InfoLevel
	}
	return *level
}

// newLogEncoder builds JSON/console encoder with optional field suppression and time layout.
// opt: encoder options
func newLogEncoder(opt ...Option) zapcore.Encoder {
	encConfig := zap.NewProductionEncoderConfig()
	encConfig.EncodeTime = zapcore.TimeEncoderOfLayout(consts.LayoutTimeEncoder)
	encConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if len(opt) > 0 {
		o := opt[0]
		if o.DisableMsg {
			encConfig.MessageKey = ""
		}
		if o.DisableLevel {
			encConfig.LevelKey = ""
		}
		if len(o.TSLayout) > 0 {
			encConfig.EncodeTime = zapcore.TimeEncoderOfLayout(o.TSLayout)
		}
	}
	switch strings.ToLower(logFormat) {
	case "json":
		return zapcore.NewJSONEncoder(encConfig)
	case "text", "console":
		return zapcore.NewConsoleEncoder(encConfig)
	default:
		return zapcore.NewJSONEncoder(encConfig)
	}
}

func readConf() {
	logFile = config.App.Logger.File
	logLevel = config.App.Logger.Level
	logFormat = config.App.Logger.Format
	logMaxAge = config.App.Logger.MaxAge
	logMaxSize = config.App.Logger.MaxSize
	logMaxBackups = config.App.Logger.MaxBackups
}

// colorfulLevelEncoder encodes levels with ANSI colors.
func colorfulLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color string
	switch level {
	case zapcore.DebugLevel:
		color = "\033[36m"
	case zapcore.InfoLevel:
		color = "\033[32m"
	case zapcore.WarnLevel:
		color = "\033[33m"
	case zapcore.ErrorLevel:
		color = "\033[31m"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		color = "\033[35m"
	default:
		color = "\033[0m"
	}
	enc.AppendString(color + level.String() + "\033[0m")
}

func newCustomConsoleEncoder(config zapcore.EncoderConfig) zapcore.Encoder {
	return &customConsoleEncoder{zapcore.NewConsoleEncoder(config)}
}

type customConsoleEncoder struct {
	zapcore.Encoder
}

func (e *customConsoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line, err := e.Encoder.EncodeEntry(ent, nil)
	if err != nil {
		return nil, err
	}

	if len(fields) > 0 {
		line.TrimNewline()
		for i, f := range fields {
			if i > 0 {
				line.AppendString("\t")
			} else {
				line.AppendString("\t")
			}
			line.AppendString(f.Key)
			line.AppendString("=")
			switch f.Type {
			case zapcore.StringType:
				line.AppendString(f.String)
			case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
				line.AppendString(strconv.FormatInt(f.Integer, 10))
			default:
				line.AppendString(fmt.Sprint(f.Interface))
			}
		}
		line.AppendString("\n")
	}

	return line, nil
}
