package logging

import "testing"

func TestNew(t *testing.T) {
	for _, env := range []string{"dev", "prod"} {
		logger, err := New(env, "debug")
		if err != nil {
			t.Fatalf("New(%q): %v", env, err)
		}
		if logger == nil {
			t.Fatalf("New(%q) returned nil logger", env)
		}
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New("dev", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
