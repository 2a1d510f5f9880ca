package lang

import "testing"

func TestDetect(t *testing.T) {
	cases := map[string]string{
		"pkg/mod.py":      Python,
		"stubs/x.PYI":     Python,
		"main.go":         Go,
		"web/app.tsx":     TypeScript,
		"README.md":       Other,
		"Makefile":        Other,
		"lib/native.hpp":  CPP,
		"scripts/run.rb":  Ruby,
		"a/b/c/Thing.kt":  Kotlin,
		"data/table.json": Other,
	}
	for p, want := range cases {
		if got := Detect(p); got != want {
			t.Errorf("Detect(%q) = %q, want %q", p, got, want)
		}
	}
}

func TestLayout(t *testing.T) {
	s, ok := Layout(Python)
	if !ok {
		t.Fatal("python should have a module layout")
	}
	if s.Suffix != ".py" || s.InitFile != "__init__.py" || s.Separator != "." {
		t.Errorf("python layout = %+v", s)
	}
	if _, ok := Layout(Go); ok {
		t.Error("go should have no module layout")
	}
}
