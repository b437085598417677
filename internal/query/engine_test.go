package query

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dietinsights/pkg/domain"
)

func fixture() domain.Dataset {
	return domain.Dataset{Records: []domain.Record{
		{DietType: "Dash", RecipeName: "Lemon Chicken", CuisineType: "American", ProteinG: 28, CarbsG: 12, FatG: 6},
		{DietType: "Keto", RecipeName: "Egg Bowl", CuisineType: "American", ProteinG: 30, CarbsG: 5, FatG: 20},
		{DietType: "Keto", RecipeName: "Steak Plate", CuisineType: "American", ProteinG: 25.5, CarbsG: 7, FatG: 18},
		{DietType: "Paleo", RecipeName: "Chicken Thighs", CuisineType: "American", ProteinG: 35, CarbsG: 2, FatG: 15},
		{DietType: "Vegan", RecipeName: "Chickpea Chicken-Free Salad", CuisineType: "Mediterranean", ProteinG: 14, CarbsG: 30, FatG: 9},
	}}
}

func TestSearchKeywordAcrossDiets(t *testing.T) {
	res, err := New(domain.DefaultWhitelist()).Search(fixture(), Params{Diet: "All", Keyword: "CHICKEN", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, Pagination{Total: 3, Page: 1, PageSize: 10, TotalPages: 1}, res.Pagination)
}

func TestSearchDietIsCanonicalized(t *testing.T) {
	res, err := New(domain.DefaultWhitelist()).Search(fixture(), Params{Diet: "  keto ", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	for _, r := range res.Records {
		assert.Equal(t, "Keto", r.DietType)
	}
}

func TestSearchKeywordMatchesNumbers(t *testing.T) {
	res, err := New(domain.DefaultWhitelist()).Search(fixture(), Params{Keyword: "25.5", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Steak Plate", res.Records[0].RecipeName)
}

func TestSearchRejectsUnknownDiet(t *testing.T) {
	_, err := New(domain.DefaultWhitelist()).Search(fixture(), Params{Diet: "Zzz", Page: 1, PageSize: 10})
	var invalid domain.InvalidDietError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Zzz", invalid.Diet)
	assert.Equal(t, domain.DefaultWhitelist().Diets(), invalid.Allowed)
	assert.True(t, domain.IsRejectedInput(err))
}

func TestSearchRejectsBadPagination(t *testing.T) {
	e := New(domain.DefaultWhitelist())
	for _, p := range []Params{{Page: 0, PageSize: 10}, {Page: 1, PageSize: 0}, {Page: -3, PageSize: -1}} {
		_, err := e.Search(fixture(), p)
		var invalid domain.InvalidPaginationError
		assert.ErrorAs(t, err, &invalid, "%+v", p)
	}
}

func TestSearchOutOfRangePageIsEmpty(t *testing.T) {
	res, err := New(domain.DefaultWhitelist()).Search(fixture(), Params{Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.NotNil(t, res.Records)
	assert.Equal(t, 5, res.Pagination.Total)
	assert.Equal(t, 3, res.Pagination.TotalPages)
}

func TestSearchHugePageSizeReturnsOnePage(t *testing.T) {
	res, err := New(domain.DefaultWhitelist()).Search(fixture(), Params{Diet: "keto", Page: 1, PageSize: math.MaxInt})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, Pagination{Total: 2, Page: 1, PageSize: math.MaxInt, TotalPages: 1}, res.Pagination)

	res, err = New(domain.DefaultWhitelist()).Search(fixture(), Params{Page: 2, PageSize: math.MaxInt})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.Pagination.TotalPages)
}

// Concatenating every page reproduces the filtered set in order.
func TestSearchPagesPartitionResults(t *testing.T) {
	ds := domain.Dataset{}
	for i := 0; i < 23; i++ {
		ds.Records = append(ds.Records, domain.Record{DietType: "Vegan", RecipeName: fmt.Sprintf("Bowl %02d", i)})
	}
	e := New(domain.DefaultWhitelist())
	for size := 1; size <= 25; size++ {
		first, err := e.Search(ds, Params{Page: 1, PageSize: size})
		require.NoError(t, err)
		assert.Equal(t, (23+size-1)/size, first.Pagination.TotalPages)

		var all []domain.Record
		for page := 1; page <= first.Pagination.TotalPages; page++ {
			res, err := e.Search(ds, Params{Page: page, PageSize: size})
			require.NoError(t, err)
			assert.LessOrEqual(t, len(res.Records), size)
			all = append(all, res.Records...)
		}
		assert.Equal(t, ds.Records, all, "page size %d", size)
	}
}
