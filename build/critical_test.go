package build

import "testing"

func TestCriticalPanicsInDebugMode(t *testing.T) {
	prevDebug, prevRelease := DEBUG, Release
	DEBUG, Release = true, "testing"
	defer func() { DEBUG, Release = prevDebug, prevRelease }()

	killstring := "Critical error: critical test killstring\nPlease submit a bug report here: https://github.com/dreamware/brightvault/issues\n"
	defer func() {
		r := recover()
		if r != killstring {
			t.Fatalf("panic did not match: got %v, want %v", r, killstring)
		}
	}()
	Critical("critical test killstring")
}

func TestCriticalDoesNotPanicOutsideDebugMode(t *testing.T) {
	prevDebug, prevRelease := DEBUG, Release
	DEBUG, Release = false, "testing"
	defer func() { DEBUG, Release = prevDebug, prevRelease }()

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("expected no panic outside debug mode, got %v", r)
		}
	}()
	Critical("should not panic")
}
