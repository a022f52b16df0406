package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Badger adapts a zap logger to badger's printf-style Logger interface.
type Badger struct {
	sugar *zap.SugaredLogger
}

// NewBadger returns a badger logger tagged with the storage component.
func NewBadger(base *zap.Logger) *Badger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Badger{sugar: base.With(zap.String("component", "badger")).Sugar()}
}

func (b *Badger) Errorf(format string, args ...interface{}) {
	b.sugar.Errorf(trim(format), args...)
}

func (b *Badger) Warningf(format string, args ...interface{}) {
	b.sugar.Warnf(trim(format), args...)
}

func (b *Badger) Infof(format string, args ...interface{}) {
	b.sugar.Infof(trim(format), args...)
}

func (b *Badger) Debugf(format string, args ...interface{}) {
	b.sugar.Debugf(trim(format), args...)
}

// badger terminates most messages with a newline.
func trim(format string) string {
	return strings.TrimRight(format, "\n")
}
