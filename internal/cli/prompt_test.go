package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/fennwick/cull/internal/classify"
	"github.com/fennwick/cull/internal/inventory"
)

func sampleClassified() classify.Classified {
	return classify.Classified{
		Record: inventory.Record{
			PID:         4321,
			Name:        "vite",
			Command:     "node /srv/app/node_modules/.bin/vite dev",
			MemoryBytes: 700 << 20,
			ListenPorts: []int{5173},
		},
		Tier: classify.TierSafeCandidate,
		Rule: "dev-server",
	}
}

func TestPrompterReviewCandidate(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes word", "YES\n", true},
		{"no", "n\n", false},
		{"empty defaults to no", "\n", false},
		{"garbage is no", "sure\n", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			p := newTerminalPrompter(strings.NewReader(tc.input), &out)
			got, err := p.ReviewCandidate(sampleClassified())
			if err != nil {
				t.Fatalf("review: %v", err)
			}
			if got != tc.want {
				t.Fatalf("input %q: got %v, want %v", tc.input, got, tc.want)
			}
			if !strings.Contains(out.String(), "4321") {
				t.Fatalf("prompt missing pid: %q", out.String())
			}
		})
	}
}

func TestPrompterOverrideRequiresExactWord(t *testing.T) {
	rec := sampleClassified()
	rec.Tier = classify.TierProtected
	rec.Rule = "database"

	cases := []struct {
		input string
		want  bool
	}{
		{"override\n", true},
		{"  override  \n", true},
		{"Override\n", false},
		{"y\n", false},
		{"yes\n", false},
	}

	for _, tc := range cases {
		var out bytes.Buffer
		p := newTerminalPrompter(strings.NewReader(tc.input), &out)
		got, err := p.AcknowledgeOverride(rec)
		if err != nil {
			t.Fatalf("override: %v", err)
		}
		if got != tc.want {
			t.Fatalf("input %q: got %v, want %v", tc.input, got, tc.want)
		}
		if !strings.Contains(out.String(), "protected") {
			t.Fatalf("override prompt does not state the tier: %q", out.String())
		}
	}
}

func TestPrompterConfirmKillListReturnsTrimmedLine(t *testing.T) {
	var out bytes.Buffer
	p := newTerminalPrompter(strings.NewReader("  TERMINATE  \n"), &out)
	line, err := p.ConfirmKillList(3)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if line != "TERMINATE" {
		t.Fatalf("got %q", line)
	}
	if !strings.Contains(out.String(), "3 process(es)") {
		t.Fatalf("prompt missing count: %q", out.String())
	}
}

func TestPrompterPropagatesEOF(t *testing.T) {
	var out bytes.Buffer
	p := newTerminalPrompter(strings.NewReader(""), &out)
	if _, err := p.ReviewCandidate(sampleClassified()); err != io.EOF {
		t.Fatalf("want io.EOF, got %v", err)
	}
}

func TestDescribeCommandTruncates(t *testing.T) {
	rec := sampleClassified()
	rec.Record.Command = strings.Repeat("x", 200)
	got := describeCommand(rec)
	if len(got) != 60 {
		t.Fatalf("got length %d: %q", len(got), got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("missing ellipsis: %q", got)
	}

	rec.Record.Command = ""
	if describeCommand(rec) != "command unavailable" {
		t.Fatalf("empty command not handled")
	}
}
