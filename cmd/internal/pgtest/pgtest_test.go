package pgtest

import (
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"authd/cmd/identity"
)

func TestShouldSkip(t *testing.T) {
	t.Setenv("CI", "")

	if ShouldSkip(nil) {
		t.Fatalf("nil error must not skip")
	}
	if !ShouldSkip(&net.OpError{Op: "dial", Err: errors.New("refused")}) {
		t.Fatalf("net.OpError must skip")
	}
	if !ShouldSkip(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")) {
		t.Fatalf("connection refused must skip")
	}
	if ShouldSkip(errors.New("password authentication failed")) {
		t.Fatalf("auth failure must not skip")
	}

	t.Setenv("CI", "1")
	if ShouldSkip(errors.New("connection refused")) {
		t.Fatalf("CI must never skip")
	}
}

func TestSchemaName(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	a, err := schemaName(now)
	if err != nil {
		t.Fatalf("schemaName: %v", err)
	}
	b, err := schemaName(now)
	if err != nil {
		t.Fatalf("schemaName: %v", err)
	}
	if a == b {
		t.Fatalf("schema names must be unique, got %q twice", a)
	}
	if !strings.HasPrefix(a, "authd_it_") || a != strings.ToLower(a) {
		t.Fatalf("unexpected schema name %q", a)
	}
	if !identity.PgIdentIsValid(a) {
		t.Fatalf("schema name %q is not a valid identifier", a)
	}
}
