package render_test

import (
	"testing"

	"dietinsights/testutil"
)

func TestNoStorageOrTransportImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.StorageImportForbidden, testutil.TransportImportForbidden),
		"render draws from aggregate views only")
}
