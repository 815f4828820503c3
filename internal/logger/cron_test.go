package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/robfig/cron/v3"
)

func TestCronRecoverReportsThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Cron(NewStdLogger(log.New(&buf, "", 0), false))

	job := cron.NewChain(cron.Recover(l)).Then(cron.FuncJob(func() { panic("tick exploded") }))
	job.Run()

	out := buf.String()
	if !strings.Contains(out, "ERROR [CRON] panic") || !strings.Contains(out, "tick exploded") {
		t.Fatalf("panic not logged: %q", out)
	}
}

func TestCronInfoIsDebug(t *testing.T) {
	var buf bytes.Buffer
	Cron(NewStdLogger(log.New(&buf, "", 0), false)).Info("wake", "now", 1)
	if buf.Len() != 0 {
		t.Fatalf("info leaked at default level: %q", buf.String())
	}
	Cron(nil).Error(nil, "no logger")
}
