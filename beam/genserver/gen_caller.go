package genserver

import (
	"errors"
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
)

// genCaller is a short-lived process that makes a call on behalf of a caller.
// It monitors the server so a crash before the reply ends the call early, and
// it always writes exactly one CallReply to out.
type genCaller struct {
	out     chan<- CallReply
	gensrv  beam.PID
	tout    time.Duration
	request any
}

func (gc *genCaller) Receive(self beam.PID, inbox *beam.Inbox) error {
	ref := beam.Monitor(self, gc.gensrv)

	beam.Send(gc.gensrv, CallRequest{From: From{caller: self, mref: ref}, Msg: gc.request})

	msg, err := inbox.ReceiveMatch(beam.MatchOneOf(beam.MatchType[CallReply](), beam.MatchDown(ref)), gc.tout)
	if err != nil {
		if errors.Is(err, exitreason.Timeout) {
			gc.out <- CallReply{Status: Timeout}
		} else {
			gc.out <- CallReply{Status: Other, Term: err}
		}
		return exitreason.Normal
	}

	switch msgT := msg.(type) {
	case CallReply:
		gc.out <- msgT
	case beam.DownMsg:
		beam.DebugPrintf("genCaller[%v] got DOWN msg from genserver: %+v", self, msgT)
		switch {
		case errors.Is(msgT.Reason, exitreason.NoProc):
			gc.out <- CallReply{Status: NoProc}
		case exitreason.IsNormal(msgT.Reason) || exitreason.IsShutdown(msgT.Reason):
			gc.out <- CallReply{Status: Stopped, Term: msgT.Reason}
		default:
			gc.out <- CallReply{Status: Other, Term: msgT.Reason}
		}
	}
	return exitreason.Normal
}
