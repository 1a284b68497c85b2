package langextract

import "testing"

func TestModulePathFromFile(t *testing.T) {
	cases := []struct {
		path string
		sep  string
		want string
	}{
		{"demo/src/lib.rs", "::", "demo"},
		{"demo/src/mod.rs", "::", "demo"},
		{"/repos/demo/src/foo.rs", "::", "demo::foo"},
		{"/repos/demo/src/a/b.rs", "::", "demo::a::b"},
		{"pkg/handler.go", ".", "pkg.handler"},
		{"a/b/__init__.py", ".", "a.b"},
		{"/tmp/work/app/models.py", ".", "app.models"},
	}
	for _, c := range cases {
		got := ModulePathFromFile(c.path, c.sep)
		if got != c.want {
			t.Errorf("ModulePathFromFile(%q, %q) = %q, want %q", c.path, c.sep, got, c.want)
		}
	}
}

func TestCrateNameFromFile(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/repos/demo/src/lib.rs", "demo"},
		{"demo/src/main.rs", "demo"},
		{"/repos/demo/src/nested/mod.rs", "demo"},
		{"pkg/handler.go", "pkg"},
	}
	for _, c := range cases {
		if got := CrateNameFromFile(c.path); got != c.want {
			t.Errorf("CrateNameFromFile(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}
