package aggregate_test

import (
	"testing"

	"dietinsights/testutil"
)

func TestNoStorageOrTransportImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.StorageImportForbidden, testutil.TransportImportForbidden),
		"aggregate operates on in-memory datasets only")
}
