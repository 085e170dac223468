package beam

var rootPID PID

// rootProc always exists and just logs the messages it gets. It is the
// sender of last resort for callers that are not themselves processes.
func startRoot() {
	rootPID = Spawn(&rootProc{})
	ProcessFlag(rootPID, TrapExit, true)
}

type rootProc struct{}

func (rp *rootProc) Receive(self PID, inbox *Inbox) error {
	for anymsg := range inbox.Messages() {
		switch msg := anymsg.(type) {
		case ExitMsg:
			if !msg.Link {
				Logger.Warn("root process ignored an exit signal", "from", msg.Proc, "reason", msg.Reason)
			}
		default:
			DebugPrintf("rootProc received: %+v", msg)
		}
	}
	return nil
}

func RootPID() PID {
	return rootPID
}
