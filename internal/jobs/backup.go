package jobs

import (
	"context"

	"github.com/mkaufman2023/enteliweb/internal/gateway"
)

// BackupResult is the outcome of one device in a backup run.
type BackupResult struct {
	Device gateway.DeviceAddress
	Result gateway.TaskResult
	Err    error
}

// RunBackup saves the database of every configured device into the
// backup directory. A failing device is logged and the run moves on; the
// run stops early only when ctx is done.
func (r *Runner) RunBackup(ctx context.Context) []BackupResult {
	results := make([]BackupResult, 0, len(r.devices))
	for _, dev := range r.devices {
		if ctx.Err() != nil {
			break
		}

		var res gateway.TaskResult
		err := r.keeper.do(ctx, func(sess *gateway.Session) error {
			var err error
			res, err = r.client.SaveDatabase(ctx, sess, dev, r.backupDir)
			return err
		})
		results = append(results, BackupResult{Device: dev, Result: res, Err: err})

		if err != nil {
			r.logger.Error("database backup failed", "device", dev.String(), "error", err)
			continue
		}
		r.logger.Info("database backup saved",
			"device", dev.String(),
			"path", res.FilePath,
			"attempts", res.Task.Attempts,
		)

		if r.recorder != nil {
			if err := r.recorder.RecordResult(ctx, res); err != nil {
				r.logger.Warn("recording backup result", "run_id", res.Task.RunID, "error", err)
			}
		}
	}
	return results
}
