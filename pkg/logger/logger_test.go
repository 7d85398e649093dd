package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: WARN, Output: &buf})

	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)
	l.Errorf("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("INFO message should be filtered at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 2") {
		t.Errorf("Expected WARN line, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] shown 3") {
		t.Errorf("Expected ERROR line, got %q", out)
	}
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: DEBUG, Output: &buf, Prefix: "[svc]"})

	l.With("[req=abc]").Debugf("hello")

	if !strings.Contains(buf.String(), "[svc] [req=abc] hello") {
		t.Errorf("Expected nested prefixes, got %q", buf.String())
	}
}

func TestWithSharesLevelAndOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: INFO, Output: &buf})
	child := parent.With("[http]")

	parent.SetLevel(ERROR)
	child.Warnf("dropped")
	if buf.Len() != 0 {
		t.Errorf("Parent SetLevel should reach the child, got %q", buf.String())
	}

	var other bytes.Buffer
	child.SetOutput(&other)
	child.SetLevel(DEBUG)
	parent.Debugf("from parent")
	if !strings.Contains(other.String(), "from parent") {
		t.Errorf("Child SetOutput should reach the parent, got %q", other.String())
	}
}

func TestWithSerializesWrites(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: DEBUG, Output: &buf})
	child := parent.With("[req]")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); parent.Infof("parent line") }()
		go func() { defer wg.Done(); child.Infof("child line") }()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 100 {
		t.Fatalf("Expected 100 intact lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, "parent line") && !strings.HasSuffix(line, "[req] child line") {
			t.Errorf("Interleaved line %q", line)
		}
	}
}

func TestColorizeWrapsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: DEBUG, Output: &buf, Colorize: true})

	l.Warnf("careful")

	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("Expected ANSI escape in colorized output, got %q", buf.String())
	}
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: DEBUG, Output: &buf})
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatalf("boom")

	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", DEBUG, true},
		{" WARNING ", WARN, true},
		{"error", ERROR, true},
		{"verbose", INFO, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
