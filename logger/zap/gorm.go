package zap

import (
	"context"
	"time"

	"github.com/forbearing/docdb/config"
	"go.uber.org/zap"
	gorml "gorm.io/gorm/logger"
)

// GormLogger implements gorm logger.Interface, routing every SQL statement
// gorm executes through logger.Gorm and flagging anything slower than the
// configured threshold.
type GormLogger struct{ l *Logger }

var _ gorml.Interface = (*GormLogger)(nil)

func (g *GormLogger) LogMode(gorml.LogLevel) gorml.Interface           { return g }
func (g *GormLogger) Info(_ context.Context, str string, args ...any)  { g.l.Infow(str, args) }
func (g *GormLogger) Warn(_ context.Context, str string, args ...any)  { g.l.Warnw(str, args) }
func (g *GormLogger) Error(_ context.Context, str string, args ...any) { g.l.Errorw(str, args) }

func (g *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil {
		g.l.Errorz("sql failed", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	if elapsed > config.App.Database.SlowQueryThreshold {
		g.l.Warnz("slow sql detected",
			zap.String("sql", sql),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", config.App.Database.SlowQueryThreshold),
			zap.Int64("rows", rows))
		return
	}
	g.l.Infoz("sql executed",
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows))
}
