package crashlog

import (
	"context"
	"errors"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/timeout"
)

type sink struct {
	store *Store
}

// StartSink spawns a process linked to self that writes every published
// [beam.Report] to store. A failed write is logged and the report dropped;
// the sink keeps running.
//
// It has the shape of a supervisor child start function:
//
//	supervisor.NewChildSpec("crashlog", func(sup beam.PID) (beam.PID, error) {
//		return crashlog.StartSink(sup, store)
//	})
func StartSink(self beam.PID, store *Store) (beam.PID, error) {
	if store == nil || store.sqlDB == nil {
		return beam.UndefinedPID, errors.New("crash log is not open")
	}
	pid := beam.SpawnLink(self, &sink{store: store})
	beam.AddReportSink(pid)
	return pid, nil
}

func (s *sink) Receive(self beam.PID, inbox *beam.Inbox) error {
	defer beam.RemoveReportSink(self)

	for {
		msg, err := inbox.Receive(timeout.Infinity)
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case beam.Report:
			var err error
			// sqlite writes hit the disk
			inbox.Block(func() {
				err = s.store.Record(context.Background(), m)
			})
			if err != nil {
				beam.Logger.Error("crash log write failed", "pid", self, "report_pid", m.PID, "error", err)
			}
		default:
			beam.DebugPrintf("crashlog sink %v dropped %+v", self, msg)
		}
	}
}
