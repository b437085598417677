package normalize_test

import (
	"testing"

	"dietinsights/testutil"
)

func TestNoStorageOrTransportImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.StorageImportForbidden, testutil.TransportImportForbidden),
		"normalize operates on in-memory datasets only")
}
