package build

import "testing"

func didPanic(fn func()) (p bool) {
	defer func() { p = recover() != nil }()
	fn()
	return
}

func TestSelect(t *testing.T) {
	prevRelease := Release
	Release = "testing"
	defer func() { Release = prevRelease }()

	var v Var
	if !didPanic(func() { Select(v) }) {
		t.Error("Select should panic with all nil fields")
	}

	v.Standard = 0
	if !didPanic(func() { Select(v) }) {
		t.Error("Select should panic with some nil fields")
	}

	v = Var{Standard: 0, Dev: 0, Testing: 0}
	if didPanic(func() { Select(v) }) {
		t.Error("Select should not panic with valid fields")
	}
	if Select(v).(int) != 0 {
		t.Error("Select should return the Testing field when Release is \"testing\"")
	}

	if !didPanic(func() { _ = Select(v).(string) }) {
		t.Error("improper type assertion should panic")
	}

	Release = "bogus"
	if !didPanic(func() { Select(v) }) {
		t.Error("Select should panic on an unrecognized Release")
	}
}
