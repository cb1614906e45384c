// Package journal keeps a SQLite record of asynchronous gateway workflows.
//
// A Journal is a gateway.TaskObserver. Every AsyncTask transition is
// upserted into the task_runs table keyed by the run's local RunID, so the
// table holds the latest known state of each SaveDatabase, CopyObject and
// other multi-phase run. The journal is an audit trail only: nothing reads
// it back to resume a run after a restart.
//
// Usage:
//
//	j := journal.New(db.DB)
//	if err := j.Start(); err != nil {
//	    return err
//	}
//	defer j.Stop()
//	client := gateway.New(gateway.Options{Observer: j})
package journal
