package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"internal", InternalImportForbidden, "mocacore/internal/core", true},
		{"internal root", InternalImportForbidden, "internal", false},
		{"internal pkg", InternalImportForbidden, "mocacore/pkg/domain", false},
		{"infra", InfraImportForbidden, "mocacore/internal/infra/persistence/memory", true},
		{"infra root", InfraImportForbidden, "mocacore/internal/infra", true},
		{"infra lookalike", InfraImportForbidden, "mocacore/internal/infrastructure", false},
		{"sql", StorageDriverImportForbidden, "database/sql", true},
		{"sql driver", StorageDriverImportForbidden, "database/sql/driver", true},
		{"badger", StorageDriverImportForbidden, "github.com/dgraph-io/badger/v4", true},
		{"pgx", StorageDriverImportForbidden, "github.com/jackc/pgx/v5/stdlib", true},
		{"s3", StorageDriverImportForbidden, "github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"sqlite", StorageDriverImportForbidden, "modernc.org/sqlite", true},
		{"sqlitex lookalike", StorageDriverImportForbidden, "modernc.org/sqlitex", false},
		{"zap", StorageDriverImportForbidden, "go.uber.org/zap", false},
	}
	for _, c := range cases {
		if got := c.fn(c.in); got != c.want {
			t.Errorf("%s(%q) = %v, want %v", c.name, c.in, got, c.want)
		}
	}
}

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "ok.go", "package tmp\nimport \"fmt\"\nvar _ = fmt.Sprint\n")
	writeGo(t, dir, "bad.go", "package tmp\nimport _ \"modernc.org/sqlite\"\n")
	writeGo(t, dir, "bad_test.go", "package tmp\nimport _ \"github.com/jackc/pgx/v5\"\n")
	writeGo(t, dir, "notes.txt", "import \"database/sql\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	writeGo(t, filepath.Join(dir, "sub"), "sub.go", "package sub\nimport _ \"database/sql\"\n")

	viols, err := directImportViolations(dir, StorageDriverImportForbidden)
	if err != nil {
		t.Fatalf("directImportViolations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "modernc.org/sqlite (in bad.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}

	if _, err := directImportViolations(filepath.Join(dir, "missing"), StorageDriverImportForbidden); err == nil {
		t.Fatal("expected error for missing dir")
	}
	writeGo(t, dir, "broken.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, StorageDriverImportForbidden); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nmocacore/internal/scoring\n\ngithub.com/dgraph-io/badger/v4\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", StorageDriverImportForbidden)
	if err != nil || len(viols) != 1 || viols[0] != "github.com/dgraph-io/badger/v4" {
		t.Fatalf("got %v, %v", viols, err)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	if _, out, err := transitiveDependencyViolations(".", InternalImportForbidden); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list failure, got %v %q", err, out)
	}
}

func TestFailIfViolations(t *testing.T) {
	rec := &recordingFatal{}
	failIfViolations(rec, "direct imports", "pure", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure %q", rec.msg)
	}
	failIfViolations(rec, "direct imports", "pure", []string{"a", "b"})
	if !strings.Contains(rec.msg, "forbidden direct imports detected (pure):\na\nb") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}
