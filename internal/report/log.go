package report

import "go.uber.org/zap"

// Log writes status changes and the identity of the peer to a logger. Files are discarded, use it
// next to a reporter that stores them.
type Log struct {
	Nop
	logger *zap.Logger
}

func NewLog(lgr *zap.Logger) *Log {
	if lgr == nil {
		lgr = zap.NewNop()
	}
	return &Log{logger: lgr}
}

func (l *Log) OnStatus(status string) {
	l.logger.Info("status changed", zap.String("status", status))
}

func (l *Log) OnPeerIdentified(label string) {
	l.logger.Info("peer identified", zap.String("peer", label))
}
