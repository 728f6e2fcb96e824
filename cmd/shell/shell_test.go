package shell

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/ValentinKolb/dShard/lib/config"
)

func newTestShell(t *testing.T) (*Shell, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Backend, cfg.DSN = config.BackendMemory, ""
	rt, err := util.OpenRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenRuntime failed: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	out := &bytes.Buffer{}
	return NewShell(rt, out), out
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  get  User 7 ", []string{"get", "User", "7"}},
		{`create User username="John Doe" email=j@x.com`, []string{"create", "User", "username=John Doe", "email=j@x.com"}},
		{`create User username=""`, []string{"create", "User", "username="}},
	}
	for _, tt := range tests {
		got, err := splitArgs(tt.in)
		if err != nil {
			t.Errorf("splitArgs(%q) failed: %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := splitArgs(`create "User`); err == nil {
		t.Error("expected error for unterminated quote")
	}
}

func TestCreateGet(t *testing.T) {
	sh, out := newTestShell(t)

	if _, err := sh.Execute(`create User username="John Doe" email=john@example.com`); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.Contains(out.String(), "username  : John Doe") {
		t.Errorf("unexpected create output:\n%s", out)
	}

	out.Reset()
	if _, err := sh.Execute("get user 1"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(out.String(), "User1: <table name: user_1>") || !strings.Contains(out.String(), "john@example.com") {
		t.Errorf("unexpected get output:\n%s", out)
	}

	out.Reset()
	if _, err := sh.Execute("get User 2"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(out.String(), "not found") {
		t.Errorf("expected not found, got:\n%s", out)
	}
}

func TestCounterCommands(t *testing.T) {
	sh, out := newTestShell(t)

	_, _ = sh.Execute("peek")
	if !strings.Contains(out.String(), "no id allocated yet") {
		t.Errorf("unexpected peek output: %q", out)
	}

	out.Reset()
	_, _ = sh.Execute("next")
	_, _ = sh.Execute("next")
	_, _ = sh.Execute("peek")
	if out.String() != "1\n2\n2\n" {
		t.Errorf("unexpected counter output: %q", out)
	}
}

func TestTableAndInit(t *testing.T) {
	sh, out := newTestShell(t)

	if _, err := sh.Execute("table User 37"); err != nil {
		t.Fatalf("table failed: %v", err)
	}
	if got := out.String(); got != "User 37 -> index=7, table=user_7, type=User7\n" {
		t.Errorf("unexpected table output: %q", got)
	}

	out.Reset()
	if _, err := sh.Execute("init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out.String(), "user_0") || !strings.Contains(out.String(), "user_9") {
		t.Errorf("unexpected init output:\n%s", out)
	}
}

func TestErrorsAndExit(t *testing.T) {
	sh, _ := newTestShell(t)

	for _, line := range []string{"frobnicate", "get User", "get User abc", "get Order 1", "create User nickname=x"} {
		if _, err := sh.Execute(line); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}

	exit, err := sh.Execute("exit")
	if err != nil || !exit {
		t.Errorf("expected exit (exit=%v, err=%v)", exit, err)
	}
	if exit, _ := sh.Execute("help"); exit {
		t.Error("help must not exit")
	}
}

func TestComplete(t *testing.T) {
	sh, _ := newTestShell(t)

	if got := sh.Complete("cr"); !reflect.DeepEqual(got, []string{"create "}) {
		t.Errorf("unexpected command completion: %q", got)
	}
	if got := sh.Complete("get u"); !reflect.DeepEqual(got, []string{"get User "}) {
		t.Errorf("unexpected entity completion: %q", got)
	}
}
