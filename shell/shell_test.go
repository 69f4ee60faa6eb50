package shell

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rtprakash/minifs/minifs"
)

// run feeds script (one command per line) through a fresh Shell over a
// fresh, unmounted FileSystem and returns everything written to out.
func run(t *testing.T, script string) string {
	t.Helper()
	var out bytes.Buffer
	s := New(minifs.New(), strings.NewReader(script), &out)
	if err := s.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func TestInitPrintsBlankLineOnlyFromSecondCall(t *testing.T) {
	out := run(t, "in\nin\n")
	want := "system initialized\n\nsystem initialized\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

// Scenario 1: create, write, seek, read round trip through the textual
// protocol, staged via the scratch memory buffer.
func TestScenarioWriteReadRoundTrip(t *testing.T) {
	script := strings.Join([]string{
		"in",
		"cr abc",
		"op abc",
		"wm 0 123456",
		"wr 1 0 6",
		"sk 1 0",
		"rd 1 50 6",
		"rm 50 6",
		"cl 1",
	}, "\n") + "\n"

	out := run(t, script)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	want := []string{
		"system initialized",
		"abc created",
		"abc opened 1",
		"6 bytes written to M",
		"6 bytes written to 1",
		"position is 0",
		"6 bytes read from 1",
		"123456",
		"1 closed",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

// Scenario 2: duplicate create fails.
func TestScenarioDuplicateCreate(t *testing.T) {
	out := run(t, "in\ncr abc\ncr abc\n")
	want := "system initialized\nabc created\nerror\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

// Scenario 3: destroy removes a file from the listing.
func TestScenarioDestroyThenDirectory(t *testing.T) {
	out := run(t, "in\ncr a\ncr b\nde a\ndr\n")
	if !strings.HasSuffix(out, "b 0\n") {
		t.Fatalf("expected listing ending with %q, got %q", "b 0\n", out)
	}
	if strings.Contains(out, "error") {
		t.Fatalf("unexpected error in %q", out)
	}
}

// Scenario 4: writing past the maximum file size is clamped.
func TestScenarioWriteBeyondMaxFileSize(t *testing.T) {
	payload := strings.Repeat("x", 1537)
	script := "in\ncr f\nop f\nwm 0 " + payload + "\nwr 1 0 1537\n"

	out := run(t, script)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	last := lines[len(lines)-1]
	if last != "1536 bytes written to 1" {
		t.Fatalf("expected clamped write of 1536 bytes, got %q (full output %q)", last, out)
	}
}

// Scenario 5: close then reopen preserves written content. The reopen
// reuses handle 1: AcquireFree always returns the smallest free OFT entry,
// and closing handle 1 is the only entry freed since root permanently
// occupies entry 0.
func TestScenarioCloseReopenPreservesContent(t *testing.T) {
	script := strings.Join([]string{
		"in",
		"cr f",
		"op f",
		"wm 0 hello",
		"wr 1 0 5",
		"cl 1",
		"op f",
		"rd 1 50 5",
		"rm 50 5",
	}, "\n") + "\n"

	out := run(t, script)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	want := []string{
		"system initialized",
		"f created",
		"f opened 1",
		"5 bytes written to M",
		"5 bytes written to 1",
		"1 closed",
		"f opened 1",
		"5 bytes read from 1",
		"hello",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

// Scenario 6: a name whose length reaches NameLen fails with path-too-long,
// surfaced to the interpreter as a plain error.
func TestScenarioPathTooLong(t *testing.T) {
	out := run(t, "in\ncr toolong\n")
	want := "system initialized\nerror\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestUnknownCommandIsError(t *testing.T) {
	out := run(t, "xx\n")
	if out != "error\n" {
		t.Fatalf("expected %q, got %q", "error\n", out)
	}
}

func TestOperationsBeforeInitFail(t *testing.T) {
	out := run(t, "cr a\n")
	if out != "error\n" {
		t.Fatalf("expected %q, got %q", "error\n", out)
	}
}

func TestCloseSeekReadWriteGuardNonPositiveHandle(t *testing.T) {
	out := run(t, "in\ncl 0\nsk 0 0\nrd 0 0 1\nwr 0 0 1\n")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(lines), out)
	}
	for _, l := range lines[1:] {
		if l != "error" {
			t.Fatalf("expected every non-positive-handle op to fail, got %q in %q", l, out)
		}
	}
}
