package paimonerr_test

import (
	"errors"
	"fmt"
	"testing"

	"paimon-mirror/paimonerr"
)

func TestNotFoundError(t *testing.T) {
	err := fmt.Errorf("resolve: %w", &paimonerr.NotFoundError{What: "snapshot directory", Path: "t/snapshot"})

	if !errors.Is(err, paimonerr.ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound)")
	}
	var nf *paimonerr.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatal("expected errors.As to find *NotFoundError")
	}
	if nf.Path != "t/snapshot" {
		t.Errorf("Path = %q, want %q", nf.Path, "t/snapshot")
	}
	want := "resolve: paimon: snapshot directory not found: t/snapshot"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestParseError(t *testing.T) {
	inner := errors.New("unexpected end of JSON input")
	err := &paimonerr.ParseError{Path: "snapshot/snapshot-1", Err: inner}

	if !errors.Is(err, paimonerr.ErrParse) {
		t.Error("expected errors.Is(err, ErrParse)")
	}
	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to be reachable")
	}
}

func TestUnsupported(t *testing.T) {
	err := paimonerr.Unsupported("bucket count change %d -> %d", 4, 8)
	if !errors.Is(err, paimonerr.ErrUnsupported) {
		t.Error("expected errors.Is(err, ErrUnsupported)")
	}
	want := "paimon: unsupported: bucket count change 4 -> 8"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
