package genserver

import (
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
)

// genStopper delivers a stop request and reports the server's exit reason.
type genStopper struct {
	out        chan<- *exitreason.S
	gensrv     beam.PID
	tout       time.Duration
	exitReason *exitreason.S
}

func (gc *genStopper) Receive(self beam.PID, inbox *beam.Inbox) error {
	beam.DebugPrintf("genStopper[%v]: preparing to stop %v", self, gc.gensrv)
	ref := beam.Monitor(self, gc.gensrv)

	beam.Send(gc.gensrv, stopRequest{reason: gc.exitReason})

	msg, err := inbox.ReceiveMatch(beam.MatchDown(ref), gc.tout)
	if err != nil {
		beam.DebugPrintf("genStopper[%v]: timed out", self)
		gc.out <- exitreason.Timeout
		return exitreason.Normal
	}

	gc.out <- msg.(beam.DownMsg).Reason
	return exitreason.Normal
}
