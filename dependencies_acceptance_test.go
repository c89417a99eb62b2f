package usercrud_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestModuleDependencies_SessionCachePresent(t *testing.T) {
	testModulePresence(t, "github.com/hashicorp/golang-lru/v2")
}

func TestModuleDependencies_PrometheusPresent(t *testing.T) {
	testModulePresence(t, "github.com/prometheus/client_golang")
}

func TestModuleDependencies_UUIDPresent(t *testing.T) {
	testModulePresence(t, "github.com/google/uuid")
}

func TestModuleDependencies_KoanfPresent(t *testing.T) {
	testModulePresence(t, "github.com/knadh/koanf/v2")
}

func TestModuleDependencies_NoDatabaseDriver(t *testing.T) {
	goMod, err := os.ReadFile("go.mod")
	if err != nil {
		t.Fatalf("read go.mod: %v", err)
	}
	for _, module := range []string{"gorm.io/gorm", "github.com/glebarez/sqlite"} {
		if moduleRequired(string(goMod), module) {
			t.Errorf("module %q must not be required: users are only stored by the users API", module)
		}
	}
}

func TestNoLocalUserStore(t *testing.T) {
	t.Run("happy_repo_has_no_storage_imports", func(t *testing.T) {
		matches, err := findStorageImports(".")
		if err != nil {
			t.Fatalf("scan repository: %v", err)
		}
		if len(matches) != 0 {
			t.Fatalf("expected no database imports, found in: %v", matches)
		}
	})

	t.Run("error_fixture_with_storage_import_is_detected", func(t *testing.T) {
		fixture := `package user
import "gorm.io/gorm"`
		if !hasStorageImport(fixture) {
			t.Fatal("expected storage import to be detected in fixture")
		}
	})
}

func testModulePresence(t *testing.T, module string) {
	t.Helper()

	t.Run("happy_present_in_real_go_mod", func(t *testing.T) {
		goMod, err := os.ReadFile("go.mod")
		if err != nil {
			t.Fatalf("read go.mod: %v", err)
		}
		if !moduleRequired(string(goMod), module) {
			t.Fatalf("expected module %q to be present in go.mod", module)
		}
	})

	t.Run("error_missing_module_in_fixture", func(t *testing.T) {
		fixture := `module example.com/demo

go 1.25.0

require (
	github.com/gin-gonic/gin v1.11.0
)`
		if moduleRequired(fixture, module) {
			t.Fatalf("expected fixture to not contain module %q", module)
		}
	})
}

func moduleRequired(goModContent, module string) bool {
	re := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(module) + `\s+v\S+`)
	return re.MatchString(goModContent)
}

func findStorageImports(root string) ([]string, error) {
	matches := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			if name == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		b, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		if hasStorageImport(string(b)) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func hasStorageImport(content string) bool {
	re := regexp.MustCompile(`"(gorm\.io/[^"]+|database/sql)"`)
	return re.MatchString(content)
}
