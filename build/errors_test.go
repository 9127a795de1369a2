package build

import (
	"errors"
	"testing"
)

func TestJoinErrors(t *testing.T) {
	tests := []struct {
		errs       []error
		sep        string
		wantNil    bool
		errStrWant string
	}{
		{wantNil: true},
		{errs: []error{}, wantNil: true},
		{errs: []error{nil}, wantNil: true},
		{errs: []error{nil, nil, nil}, wantNil: true},
		{errs: []error{errors.New("foo")}, sep: ";", errStrWant: "foo"},
		{errs: []error{errors.New("foo"), errors.New("bar"), errors.New("baz")}, sep: ";", errStrWant: "foo;bar;baz"},
		{errs: []error{nil, errors.New("foo"), nil, errors.New("bar"), nil}, sep: ";", errStrWant: "foo;bar"},
	}
	for _, tt := range tests {
		err := JoinErrors(tt.errs, tt.sep)
		if tt.wantNil && err != nil {
			t.Errorf("expected nil error, got %q", err)
		} else if err != nil && err.Error() != tt.errStrWant {
			t.Errorf("expected %q, got %q", tt.errStrWant, err)
		}
	}
}

func TestComposeErrors(t *testing.T) {
	if err := ComposeErrors(nil, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	err := ComposeErrors(nil, errors.New("a"), errors.New("b"))
	if err == nil {
		t.Fatalf("expected non-nil error")
	}
	if err.Error() != "a; b" {
		t.Fatalf("expected %q, got %q", "a; b", err.Error())
	}
}

func TestExtendErr(t *testing.T) {
	if ExtendErr("prefix", nil) != nil {
		t.Fatalf("expected nil error to stay nil")
	}
	err := ExtendErr("context", errors.New("cause"))
	if err.Error() != "context: cause" {
		t.Fatalf("expected %q, got %q", "context: cause", err.Error())
	}
}
