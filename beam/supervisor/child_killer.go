package supervisor

import (
	"errors"
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/timeout"
	"github.com/uberbrodt/beamgo/chronos"
)

type childKillerDoneMsg struct {
	// set if the child exited with something other than the reason it was sent
	err error
}

// childKiller stops one child on behalf of the supervisor and reports back on
// done once the child is down.
type childKiller struct {
	done      chan<- childKillerDoneMsg
	parentPID beam.PID
	child     ChildSpec
}

func (ck *childKiller) Receive(self beam.PID, inbox *beam.Inbox) error {
	beam.DebugPrintf("Supervisor[%v] is terminating child %s", ck.parentPID, ck.child.ID)
	ref := beam.Monitor(self, ck.child.pid)
	beam.Unlink(ck.parentPID, ck.child.pid)

	shutdown := ck.child.Shutdown
	var sent *exitreason.S
	var down beam.DownMsg

	switch {
	case shutdown.BrutalKill:
		sent = exitreason.Kill
		down = ck.sendAndWait(inbox, ref, sent, timeout.Infinity)
	case shutdown.Infinity:
		sent = exitreason.SupervisorShutdown
		down = ck.sendAndWait(inbox, ref, sent, timeout.Infinity)
	default:
		sent = exitreason.SupervisorShutdown
		down = ck.sendAndWait(inbox, ref, sent, chronos.Millis(shutdown.Timeout))
		if down.Reason == nil {
			beam.DebugPrintf("Supervisor[%v] child %s did not stop within %dms, killing", ck.parentPID, ck.child.ID, shutdown.Timeout)
			sent = exitreason.Kill
			down = ck.sendAndWait(inbox, ref, sent, timeout.Infinity)
		}
	}

	ck.done <- childKillerDoneMsg{err: ck.checkReason(sent, down.Reason)}
	return exitreason.Normal
}

// sendAndWait returns a zero DownMsg if tout elapsed.
func (ck *childKiller) sendAndWait(inbox *beam.Inbox, ref beam.Ref, reason *exitreason.S, tout time.Duration) beam.DownMsg {
	beam.Exit(ck.parentPID, ck.child.pid, reason)
	msg, err := inbox.ReceiveMatch(beam.MatchDown(ref), tout)
	if err != nil {
		return beam.DownMsg{}
	}
	return msg.(beam.DownMsg)
}

func (ck *childKiller) checkReason(sent *exitreason.S, got error) error {
	switch {
	case errors.Is(got, sent):
		return nil
	// the child was already gone
	case errors.Is(got, exitreason.NoProc):
		return nil
	case exitreason.IsShutdown(got) && ck.child.Restart != Permanent:
		return nil
	case exitreason.IsNormal(got) && ck.child.Restart != Permanent:
		return nil
	default:
		return got
	}
}
