package db

import (
	"context"
	"fmt"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

// statementWriter forwards gorm's warn-level lines (slow queries and failed
// statements) to the service logger.
type statementWriter struct {
	logg *logger.Logger
}

func (w statementWriter) Printf(format string, args ...any) {
	ctx := w.logg.WithField(context.Background(), "detail", fmt.Sprintf(format, args...))
	w.logg.Warn(ctx, "db.statement_warning")
}

// newGormLogger is silent unless a slow-query threshold and a logger are set.
func newGormLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil || slow <= 0 {
		return gormlogger.Discard
	}
	return gormlogger.New(statementWriter{logg: logg}, gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
