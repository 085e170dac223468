package crashlog

import (
	"context"
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/recurringtask"
)

type pruneArgs struct {
	store *Store
	keep  int
}

// StartPruner starts a recurring task, linked to self, that trims store to
// the newest keep entries every interval.
func StartPruner(self beam.PID, store *Store, keep int, interval time.Duration) (beam.PID, error) {
	return recurringtask.StartLink(self, prune, initPrune, pruneArgs{store: store, keep: keep},
		recurringtask.SetInterval(interval))
}

func initPrune(self beam.PID, args pruneArgs) (pruneArgs, error) {
	return args, nil
}

func prune(self beam.PID, args pruneArgs) (pruneArgs, error) {
	var n int64
	var err error
	// sqlite writes hit the disk
	beam.Block(self, func() {
		n, err = args.store.Prune(context.Background(), args.keep)
	})
	if err != nil {
		return args, err
	}
	if n > 0 {
		beam.Logger.Info("pruned crash log", "pid", self, "deleted", n)
	}
	return args, nil
}
