package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNewOutput(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)

	if o == nil {
		t.Fatal("expected non-nil Output")
	}
	if o.w != &buf {
		t.Error("writer not set correctly")
	}
	if !o.useColor {
		t.Error("expected useColor to be true by default")
	}
}

func TestSetColor(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)

	o.SetColor(false)
	if o.useColor {
		t.Error("expected useColor to be false")
	}

	o.SetColor(true)
	if !o.useColor {
		t.Error("expected useColor to be true")
	}
}

func TestSetDebug(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)

	o.SetDebug(true)
	if !o.debug {
		t.Error("expected debug to be true")
	}

	o.SetDebug(false)
	if o.debug {
		t.Error("expected debug to be false")
	}
}

func TestColorOutput(t *testing.T) {
	t.Run("color enabled", func(t *testing.T) {
		var buf bytes.Buffer
		o := New(&buf)
		o.SetColor(true)

		result := o.color(colorGreen, "test")
		if !strings.Contains(result, "\033[32m") {
			t.Error("expected color code in output")
		}
		if !strings.Contains(result, "\033[0m") {
			t.Error("expected reset code in output")
		}
	})

	t.Run("color disabled", func(t *testing.T) {
		var buf bytes.Buffer
		o := New(&buf)
		o.SetColor(false)

		result := o.color(colorGreen, "test")
		if result != "test" {
			t.Errorf("expected plain 'test', got %q", result)
		}
	})
}

func TestStepLines(t *testing.T) {
	tests := []struct {
		name   string
		print  func(o *Output)
		wantIn []string
	}{
		{
			name:   "done",
			print:  func(o *Output) { o.Done("pulled %s to %s", "/a", "a") },
			wantIn: []string{"✓", "pulled /a to a"},
		},
		{
			name:   "skipped",
			print:  func(o *Output) { o.Skipped("%s already exists", "/b") },
			wantIn: []string{"○", "/b already exists"},
		},
		{
			name:   "plain line",
			print:  func(o *Output) { o.Println("%d entries", 3) },
			wantIn: []string{"3 entries\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			o := New(&buf)
			o.SetColor(false)

			tt.print(o)

			output := buf.String()
			for _, want := range tt.wantIn {
				if !strings.Contains(output, want) {
					t.Errorf("expected output to contain %q, got %q", want, output)
				}
			}
		})
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	o.Table([]string{"TYPE", "NAME"}, [][]string{
		{"dir", "logs"},
		{"file", "readme.txt"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[1] != "dir   logs" {
		t.Errorf("expected aligned row, got %q", lines[1])
	}
	if lines[2] != "file  readme.txt" {
		t.Errorf("expected aligned row, got %q", lines[2])
	}
}

func TestInfo(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	o.Info("test %s %d", "message", 42)

	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Error("expected INFO prefix")
	}
	if !strings.Contains(output, "test message 42") {
		t.Errorf("expected formatted message, got %q", output)
	}
}

func TestWarn(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	o.Warn("warning %s", "here")

	output := buf.String()
	if !strings.Contains(output, "WARN") {
		t.Error("expected WARN prefix")
	}
	if !strings.Contains(output, "warning here") {
		t.Errorf("expected formatted message, got %q", output)
	}
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	o.Error("error: %v", "failed")

	output := buf.String()
	if !strings.Contains(output, "ERROR") {
		t.Error("expected ERROR prefix")
	}
	if !strings.Contains(output, "error: failed") {
		t.Errorf("expected formatted message, got %q", output)
	}
}

func TestDebugOutput(t *testing.T) {
	t.Run("debug enabled", func(t *testing.T) {
		var buf bytes.Buffer
		o := New(&buf)
		o.SetColor(false)
		o.SetDebug(true)

		o.Debug("debug %s", "info")

		output := buf.String()
		if !strings.Contains(output, "DEBUG") {
			t.Error("expected DEBUG prefix when debug enabled")
		}
	})

	t.Run("debug disabled", func(t *testing.T) {
		var buf bytes.Buffer
		o := New(&buf)
		o.SetColor(false)
		o.SetDebug(false)

		o.Debug("debug %s", "info")

		output := buf.String()
		if output != "" {
			t.Errorf("expected empty output when debug disabled, got %q", output)
		}
	})
}

// mockStats implements the Stats interface for testing
type mockStats struct {
	files, dirs, skipped int
	bytes                string
	duration             time.Duration
}

func (m *mockStats) GetFiles() int              { return m.files }
func (m *mockStats) GetDirs() int               { return m.dirs }
func (m *mockStats) GetSkipped() int            { return m.skipped }
func (m *mockStats) GetBytes() string           { return m.bytes }
func (m *mockStats) GetDuration() time.Duration { return m.duration }

func TestRecap(t *testing.T) {
	var buf bytes.Buffer
	o := New(&buf)
	o.SetColor(false)

	stats := &mockStats{
		files:    5,
		dirs:     3,
		skipped:  2,
		bytes:    "1.5 MB",
		duration: 2500 * time.Millisecond,
	}

	o.Recap("pushed", stats)

	output := buf.String()
	if !strings.Contains(output, "PUSHED") {
		t.Error("expected PUSHED in output")
	}
	if !strings.Contains(output, "files=5") {
		t.Error("expected files=5 in output")
	}
	if !strings.Contains(output, "dirs=3") {
		t.Error("expected dirs=3 in output")
	}
	if !strings.Contains(output, "skipped=2") {
		t.Error("expected skipped=2 in output")
	}
	if !strings.Contains(output, "1.5 MB") {
		t.Error("expected size in output")
	}
	if !strings.Contains(output, "2.50s") {
		t.Error("expected duration in output")
	}
}
