package config

import (
	"bytes"
	"testing"
)

func captureExit(t *testing.T) (*bytes.Buffer, *int) {
	t.Helper()
	var out bytes.Buffer
	code := -1
	prevOutput, prevExit := exitOutput, exitFunc
	exitOutput = &out
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() {
		exitOutput, exitFunc = prevOutput, prevExit
	})
	return &out, &code
}

func TestExitfUsesFailureCode(t *testing.T) {
	out, code := captureExit(t)
	Exitf("fatal: %s", "something broke")
	if *code != ExitFailure {
		t.Fatalf("exit code = %d, want %d", *code, ExitFailure)
	}
	if out.String() != "fatal: something broke\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestExitCodefUsesGivenCode(t *testing.T) {
	out, code := captureExit(t)
	ExitCodef(ExitUsage, "usage: %s", "signingctl <command>")
	if *code != ExitUsage {
		t.Fatalf("exit code = %d, want %d", *code, ExitUsage)
	}
	if out.String() != "usage: signingctl <command>\n" {
		t.Fatalf("output = %q", out.String())
	}
}
