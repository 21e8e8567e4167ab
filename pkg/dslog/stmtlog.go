package dslog

import "time"

// StmtLogger reports physical statements slower than a threshold.
// A negative threshold disables reporting.
type StmtLogger struct {
	logMinDurationStatement time.Duration
}

func NewStmtLogger(logMinDurationStatement time.Duration) *StmtLogger {
	return &StmtLogger{
		logMinDurationStatement: logMinDurationStatement,
	}
}

func (s *StmtLogger) shouldLogStatement(t time.Duration) bool {
	return s != nil && s.logMinDurationStatement >= 0 && t > s.logMinDurationStatement
}

func (s *StmtLogger) ReportStatement(dataSource string, stmt string, t time.Duration) {
	if s.shouldLogStatement(t) {
		Zero.Info().
			Str("ds", dataSource).
			Str("stmt", stmt).
			Dur("duration", t).
			Msg("slow statement")
	}
}
