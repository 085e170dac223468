package beam

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/uberbrodt/beamgo/beam/exitreason"
)

type ReportKind string

const (
	// a process exited with an abnormal reason
	CrashReportKind ReportKind = "crash_report"
	// a supervisor restarted a child or gave up
	SupervisorReportKind ReportKind = "supervisor_report"
)

// Report is sent to every report sink. Crash reports are published by the
// runtime for each abnormal exit; behaviours publish their own with [Publish].
type Report struct {
	Kind ReportKind
	// the process the report is about
	PID    PID
	Name   Name
	Reason *exitreason.S
	Detail string
	Time   time.Time
}

var sinks = struct {
	mx   sync.RWMutex
	pids []PID
}{}

// AddReportSink subscribes pid to [Report] messages.
func AddReportSink(pid PID) {
	sinks.mx.Lock()
	defer sinks.mx.Unlock()
	if !slices.Contains(sinks.pids, pid) {
		sinks.pids = append(sinks.pids, pid)
	}
}

func RemoveReportSink(pid PID) {
	sinks.mx.Lock()
	defer sinks.mx.Unlock()
	sinks.pids = slices.DeleteFunc(sinks.pids, func(p PID) bool { return p.Equals(pid) })
}

func ReportSinks() []PID {
	sinks.mx.RLock()
	defer sinks.mx.RUnlock()
	return slices.Clone(sinks.pids)
}

// Publish sends r to every live report sink. Dead sinks are dropped.
func Publish(r Report) {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	for _, sink := range ReportSinks() {
		if !IsAlive(sink) {
			RemoveReportSink(sink)
			continue
		}
		// a sink's own crash is not reported to itself
		if sink.Equals(r.PID) {
			continue
		}
		Send(sink, r)
	}
}

func publishCrash(p *process, name Name, reason *exitreason.S) {
	DebugPrintf("%v exited abnormally: %v", p, reason)

	var detail string
	if exc := reason.ExceptionDetail(); exc != nil {
		detail = exc.Error()
	}
	Publish(Report{
		Kind:   CrashReportKind,
		PID:    p.self(),
		Name:   name,
		Reason: reason,
		Detail: detail,
	})
}
