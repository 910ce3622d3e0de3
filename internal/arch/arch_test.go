// ./internal/arch/arch_test.go
package arch

import (
	"bytes"
	"encoding/json"
	"io"
	"os/exec"
	"strings"
	"testing"
)

type pkg struct {
	ImportPath string
	Imports    []string
	Standard   bool
}

// presentation and orchestration layers, banned from the numeric core.
var outer = []string{
	"qba/internal/app", "qba/internal/appshell", "qba/internal/config",
	"qba/internal/output", "qba/internal/writers", "qba/internal/storage",
	"qba/internal/metrics", "qba/cmd/",
}

func TestImportBoundaries(t *testing.T) {
	cmd := exec.Command("go", "list", "-json", "./...")
	cmd.Dir = "../.."
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		t.Fatalf("go list: %v", err)
	}
	dec := json.NewDecoder(&out)

	core := []string{
		"qba/internal/table", "qba/internal/bias", "qba/internal/misclass",
		"qba/internal/pool", "qba/internal/impute", "qba/internal/dist",
		"qba/internal/params", "qba/internal/engine", "qba/internal/dataset",
		"qba/internal/randx", "qba/internal/qbaerr",
	}
	bans := map[string][]string{
		"qba/internal/pba":   {"qba/internal/app", "qba/internal/config", "qba/internal/output", "qba/internal/writers", "qba/internal/storage", "qba/cmd/"},
		"qba/internal/sweep": {"qba/internal/app", "qba/internal/config", "qba/internal/output", "qba/internal/writers", "qba/internal/storage", "qba/cmd/"},
		"qba/internal/output": {
			"qba/internal/app", "qba/internal/config", "qba/internal/writers", "qba/cmd/",
		},
		"qba/internal/writers": {"qba/internal/app", "qba/internal/config", "qba/cmd/"},
		"qba/internal/storage": {"qba/internal/app", "qba/internal/output", "qba/internal/writers", "qba/internal/pba", "qba/cmd/"},
		"qba/pkg/":             {"qba/internal/"},
	}
	for _, c := range core {
		bans[c] = append(append([]string{}, outer...), "qba/internal/pba", "qba/internal/sweep")
	}

	var violations []string
	for {
		var p pkg
		if err := dec.Decode(&p); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !strings.HasPrefix(p.ImportPath, "qba/") {
			continue
		}
		imp := p.ImportPath
		for prefix, forbidden := range bans {
			if !under(imp, prefix) {
				continue
			}
			for _, dep := range p.Imports {
				if !strings.HasPrefix(dep, "qba/") {
					continue
				}
				for _, ban := range forbidden {
					if strings.HasPrefix(dep, ban) {
						violations = append(violations, imp+" → "+dep)
					}
				}
			}
		}
	}

	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n  %s", strings.Join(violations, "\n  "))
	}
}

// under reports whether import path imp is prefix or one of its
// subpackages. A prefix ending in "/" matches any path below it.
func under(imp, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(imp, prefix)
	}
	return imp == prefix || strings.HasPrefix(imp, prefix+"/")
}
