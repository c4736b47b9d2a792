package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"

	"campusperks/internal/logger"
)

// gormZapLogger 把 GORM 日志接到 zap，SQL 日志带上请求 ID
type gormZapLogger struct {
	log           *zap.Logger
	level         gormLogger.LogLevel
	slowThreshold time.Duration
	skipNotFound  bool
}

// NewGormLogger 创建 GORM 日志适配器
// ErrRecordNotFound 属于正常业务分支，不作为错误输出
func NewGormLogger(log *zap.Logger, level gormLogger.LogLevel, slowThreshold time.Duration) gormLogger.Interface {
	return &gormZapLogger{
		log:           log,
		level:         level,
		slowThreshold: slowThreshold,
		skipNotFound:  true,
	}
}

// LogMode 设置日志级别
func (l *gormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// Info 日志
func (l *gormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Info {
		l.withRequestID(ctx).Sugar().Infof(msg, data...)
	}
}

// Warn 日志
func (l *gormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Warn {
		l.withRequestID(ctx).Sugar().Warnf(msg, data...)
	}
}

// Error 日志
func (l *gormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Error {
		l.withRequestID(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace SQL 执行日志
func (l *gormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	log := l.withRequestID(ctx)

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && (!errors.Is(err, gormLogger.ErrRecordNotFound) || !l.skipNotFound):
		log.Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		log.Warn("SQL 慢查询", fields...)
	case l.level >= gormLogger.Info:
		log.Debug("SQL 执行", fields...)
	}
}

func (l *gormZapLogger) withRequestID(ctx context.Context) *zap.Logger {
	if id := logger.GetRequestID(ctx); id != "" {
		return l.log.With(zap.String("request_id", id))
	}
	return l.log
}
