package manager

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/zulandar/buildyard/internal/buildqueue"
	"github.com/zulandar/buildyard/internal/models"
)

// LogInteractor accepts every dispatch and only logs it. It stands in for a
// real builder protocol; builds stay BUILDING until their status is
// reported through the CLI or API.
type LogInteractor struct {
	Logger logrus.FieldLogger
}

func (l LogInteractor) Dispatch(_ context.Context, b *models.Builder, c *buildqueue.Candidate) error {
	l.Logger.WithFields(logrus.Fields{
		"builder": b.Name,
		"build":   c.Build.ID,
		"cookie":  c.Build.DispatchCookie,
	}).Info("build handed to builder")
	return nil
}
