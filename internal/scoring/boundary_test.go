package scoring

import (
	"testing"

	"mocacore/testutil"
)

func TestScoringIsPure(t *testing.T) {
	forbidden := func(p string) bool {
		return testutil.InfraImportForbidden(p) || testutil.StorageDriverImportForbidden(p)
	}
	testutil.AssertNoDirectImports(t, ".", forbidden, "aggregation runs without storage")
	testutil.AssertNoDirectImports(t, "sections", forbidden, "section scorers are pure functions")
	testutil.AssertNoTransitiveDependency(t, "./...", testutil.StorageDriverImportForbidden, "scoring must not pull in storage clients")
}
