package logger

import "go.uber.org/zap"

// Zap wraps a zap.Logger to implement Logger.
type Zap struct {
	logger *zap.SugaredLogger
}

func NewZap(logger *zap.Logger) Logger {
	return &Zap{logger: logger.Sugar()}
}

func (z *Zap) Debug(msg string, args ...any) { z.logger.Debugw(msg, args...) }
func (z *Zap) Info(msg string, args ...any)  { z.logger.Infow(msg, args...) }
func (z *Zap) Warn(msg string, args ...any)  { z.logger.Warnw(msg, args...) }
func (z *Zap) Error(msg string, args ...any) { z.logger.Errorw(msg, args...) }
