package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/linuxmatters/leveller/internal/batch"
	"github.com/linuxmatters/leveller/internal/preset"
	"github.com/linuxmatters/leveller/internal/processor"
)

func TestPrintSummary(t *testing.T) {
	t.Run("all_succeeded", func(t *testing.T) {
		var buf bytes.Buffer
		PrintSummary(&buf, &batch.Result{Succeeded: 2, Outcomes: []processor.Outcome{
			{Source: "a.wav", Status: processor.StatusSucceeded},
			{Source: "b.wav", Status: processor.StatusSucceeded},
		}})
		if !strings.Contains(buf.String(), "2 succeeded, 0 failed, 0 cancelled") {
			t.Errorf("unexpected summary: %q", buf.String())
		}
	})

	t.Run("failures_listed", func(t *testing.T) {
		var buf bytes.Buffer
		PrintSummary(&buf, &batch.Result{Succeeded: 1, Failed: 1, Outcomes: []processor.Outcome{
			{Source: "/in/a.wav", Status: processor.StatusSucceeded},
			{Source: "/in/b.wav", Status: processor.StatusFailed, Err: errors.New("invalid input: empty file")},
		}})
		output := buf.String()
		if !strings.Contains(output, "1 succeeded, 1 failed") {
			t.Errorf("missing counts in %q", output)
		}
		if !strings.Contains(output, "b.wav:") || !strings.Contains(output, "invalid input: empty file") {
			t.Errorf("missing failure reason in %q", output)
		}
		if strings.Contains(output, "a.wav:") {
			t.Errorf("succeeded file listed as failure in %q", output)
		}
	})
}

func TestPrintPresets(t *testing.T) {
	var buf bytes.Buffer
	PrintPresets(&buf)
	output := buf.String()
	for _, name := range preset.Names() {
		if !strings.Contains(output, name) {
			t.Errorf("preset %q missing from listing", name)
		}
	}
	if !strings.Contains(output, "80-8000 Hz") {
		t.Errorf("voice band limits missing from listing:\n%s", output)
	}
}
