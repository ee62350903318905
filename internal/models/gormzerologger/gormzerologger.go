package gormzerologger

import (
	"context"
	"errors"
	"sparsh/internal/models/splog"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

const defaultSlowQuery = 200 * time.Millisecond

// niveaux du logger applicatif vers les niveaux gorm
var levels = map[string]logger.LogLevel{
	"silent": logger.Silent,
	"error":  logger.Error,
	"warn":   logger.Warn,
	"info":   logger.Warn,
	"debug":  logger.Info,
	"trace":  logger.Info,
}

// Logger relaie les traces de gorm vers le composant "gorm" de splog
type Logger struct {
	zl           zerolog.Logger
	level        logger.LogLevel
	slow         time.Duration
	skipNotFound bool
}

type Option func(*Logger)

// WithSlowThreshold fixe la durée au-delà de laquelle une requête part en warn
func WithSlowThreshold(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.slow = d
		}
	}
}

// WithNotFound journalise aussi gorm.ErrRecordNotFound
func WithNotFound() Option {
	return func(l *Logger) { l.skipNotFound = false }
}

func New(level string, opts ...Option) *Logger {
	l := &Logger{
		zl:           splog.For("gorm"),
		level:        ParseLevel(level),
		slow:         defaultSlowQuery,
		skipNotFound: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ParseLevel : un niveau inconnu vaut warn
func ParseLevel(level string) logger.LogLevel {
	if l, ok := levels[level]; ok {
		return l
	}
	return logger.Warn
}

func (l *Logger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// event renvoie nil sous le niveau configuré ; zerolog ignore un *Event nil
func (l *Logger) event(level logger.LogLevel) *zerolog.Event {
	if l.level < level {
		return nil
	}
	switch level {
	case logger.Error:
		return l.zl.Error()
	case logger.Warn:
		return l.zl.Warn()
	default:
		return l.zl.Info()
	}
}

func (l *Logger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.event(logger.Info).Msgf(msg, data...)
}

func (l *Logger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.event(logger.Warn).Msgf(msg, data...)
}

func (l *Logger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.event(logger.Error).Msgf(msg, data...)
}

// Trace ne rend le SQL que si la ligne est réellement écrite
func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var ev *zerolog.Event
	var msg string
	switch {
	case err != nil && !l.ignorable(err):
		ev, msg = l.event(logger.Error).Err(err).Str("caller", utils.FileWithLineNum()), "database query error"
	case elapsed > l.slow:
		ev, msg = l.event(logger.Warn).Dur("threshold", l.slow), "slow database query"
	case l.level >= logger.Info:
		ev, msg = l.zl.Debug(), "database query"
	}
	if ev == nil {
		return
	}

	sql, rows := fc()
	ev.Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg(msg)
}

// les doublons sont des erreurs métier (avis déjà déposé), pas des incidents
func (l *Logger) ignorable(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return l.skipNotFound && errors.Is(err, gorm.ErrRecordNotFound)
}
