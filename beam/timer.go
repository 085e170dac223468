package beam

import (
	"errors"
	"time"

	"github.com/uberbrodt/beamgo/beam/exitreason"
)

type TimerRef struct {
	pid PID
}

// SendAfter sends term to pid once tout has elapsed. Like [Send], term is
// copied now, so later changes by the caller are not seen by pid. The timer
// is a small process that monitors pid and gives up if pid exits first.
//
// Returns an empty [TimerRef] and schedules nothing if pid is not alive.
func SendAfter(pid PID, term any, tout time.Duration) TimerRef {
	if !IsAlive(pid) {
		return TimerRef{}
	}
	t := &timer{to: pid, term: CopyTerm(term), tout: tout}

	return TimerRef{pid: Spawn(t)}
}

// CancelTimer stops a pending [SendAfter]. It returns [exitreason.NoProc] if
// the timer already fired or was never started.
func CancelTimer(tr TimerRef) error {
	if !IsAlive(tr.pid) {
		return exitreason.NoProc
	}
	Send(tr.pid, cancelTimer{})
	return nil
}

type timer struct {
	to   PID
	term any
	tout time.Duration
}

type cancelTimer struct{}

func (t *timer) Receive(self PID, inbox *Inbox) error {
	ref := Monitor(self, t.to)
	deadline := time.Now().Add(t.tout)

	for {
		msg, err := inbox.ReceiveMatch(
			MatchOneOf(MatchType[cancelTimer](), MatchDown(ref)),
			max(time.Until(deadline), 0),
		)
		if errors.Is(err, exitreason.Timeout) {
			// already copied by SendAfter
			sendSignal(t.to, messageSignal{term: t.term})
			return exitreason.Normal
		}
		if err != nil {
			return err
		}
		switch msg.(type) {
		case cancelTimer, DownMsg:
			// cancelled, or the process we want to send a message to died
			return exitreason.Normal
		}
	}
}
