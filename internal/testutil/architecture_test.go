// SPDX-License-Identifier: MIT

package testutil

import (
	"testing"

	"golang.org/x/tools/go/packages"
)

const controllerPkg = "github.com/ManuGH/camwatch/internal/session"

// Monitors and base infrastructure feed the controller through the
// event bus. A direct import would invert that flow, so the gate keeps
// them controller-free, transitively.
var leafPackages = []string{
	"github.com/ManuGH/camwatch/internal/config",
	"github.com/ManuGH/camwatch/internal/device",
	"github.com/ManuGH/camwatch/internal/events",
	"github.com/ManuGH/camwatch/internal/frames",
	"github.com/ManuGH/camwatch/internal/fsm",
	"github.com/ManuGH/camwatch/internal/journal",
	"github.com/ManuGH/camwatch/internal/log",
	"github.com/ManuGH/camwatch/internal/metrics",
	"github.com/ManuGH/camwatch/internal/motion",
	"github.com/ManuGH/camwatch/internal/notify",
	"github.com/ManuGH/camwatch/internal/permission",
	"github.com/ManuGH/camwatch/internal/photo",
	"github.com/ManuGH/camwatch/internal/pressure",
	"github.com/ManuGH/camwatch/internal/ratelimit",
	"github.com/ManuGH/camwatch/internal/storage",
	"github.com/ManuGH/camwatch/internal/telemetry",
}

// Composition and read-side packages sit above the controller; the
// controller never reaches back up into them.
var upperPackages = []string{
	"github.com/ManuGH/camwatch/internal/api",
	"github.com/ManuGH/camwatch/internal/daemon",
	"github.com/ManuGH/camwatch/internal/health",
	"github.com/ManuGH/camwatch/internal/mirror",
}

func loadPackages(t *testing.T, patterns ...string) []*packages.Package {
	t.Helper()
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps,
		Dir:  MustRepoRoot(t),
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		t.Fatal("packages loaded with errors")
	}
	return pkgs
}

func dependsOn(pkg *packages.Package, target string, seen map[string]bool) bool {
	if seen[pkg.PkgPath] {
		return false
	}
	seen[pkg.PkgPath] = true
	for path, dep := range pkg.Imports {
		if path == target || dependsOn(dep, target, seen) {
			return true
		}
	}
	return false
}

func TestLeafPackagesDoNotImportController(t *testing.T) {
	for _, pkg := range loadPackages(t, leafPackages...) {
		if dependsOn(pkg, controllerPkg, map[string]bool{}) {
			t.Errorf("%s depends on %s; publish to the event bus instead", pkg.PkgPath, controllerPkg)
		}
	}
}

func TestControllerDoesNotImportUpperLayers(t *testing.T) {
	pkgs := loadPackages(t, controllerPkg)
	for _, pkg := range pkgs {
		for _, upper := range upperPackages {
			if dependsOn(pkg, upper, map[string]bool{}) {
				t.Errorf("%s depends on %s; the controller must stay below the composition layer", pkg.PkgPath, upper)
			}
		}
	}
}
