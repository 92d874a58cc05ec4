package pgstore

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock, nil)
}

func strp(s string) *string { return &s }

func TestListingsByArea_ScansRows(t *testing.T) {
	mock, repo := newMock(t)

	rows := pgxmock.NewRows(listingColumns).
		AddRow("v1", "taco-joint", "Taco Joint", strp("1 Main St"), "austin", strp("soco"),
			model.Float(4.5), model.Int(120), 2,
			[]string{"wifi", "parking"}, []string{"takeout"}, []string{"tacos"},
			30.25, -97.75, []byte(`[{"day":1,"open":480,"close":1320}]`)).
		AddRow("v2", "sushi-zen", "Sushi Zen", (*string)(nil), "austin", (*string)(nil),
			(*float64)(nil), (*int)(nil), 0,
			[]string(nil), []string(nil), []string(nil),
			30.26, -97.74, []byte(nil))

	mock.ExpectQuery(`SELECT id, slug, name, .* FROM listings WHERE area_id = \$1 ORDER BY id`).
		WithArgs("austin").
		WillReturnRows(rows)

	got, err := repo.ListingsByArea(context.Background(), "austin")
	require.NoError(t, err)
	require.Len(t, got, 2)

	v1 := got[0]
	assert.Equal(t, "1 Main St", v1.Address)
	assert.Equal(t, "soco", v1.SubAreaID)
	assert.Equal(t, model.PriceModerate, v1.Price)
	assert.True(t, v1.HasAmenity(model.AmenityWiFi))
	assert.True(t, v1.Offers(model.ServiceTakeout))
	require.Len(t, v1.Hours, 1)
	assert.Equal(t, 1320, v1.Hours[0].CloseMinute)

	v2 := got[1]
	assert.Nil(t, v2.Rating)
	assert.Nil(t, v2.ReviewCount)
	assert.Equal(t, model.PriceUnknown, v2.Price)
	assert.Empty(t, v2.Hours)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListingsByArea_AllWhenEmptyArea(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery(`SELECT .* FROM listings ORDER BY id`).
		WillReturnRows(pgxmock.NewRows(listingColumns))

	got, err := repo.ListingsByArea(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListingsByArea_QueryError(t *testing.T) {
	mock, repo := newMock(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(`FROM listings`).WithArgs("austin").WillReturnError(boom)

	_, err := repo.ListingsByArea(context.Background(), "austin")
	require.ErrorIs(t, err, boom)
}

func TestSubAreas_FiltersByParent(t *testing.T) {
	mock, repo := newMock(t)
	rows := pgxmock.NewRows(placeColumns).
		AddRow("soco", "south-congress", "South Congress", "sub_area", strp("austin"), 12)
	mock.ExpectQuery(`SELECT id, slug, name, kind, parent_id, listing_count FROM places WHERE kind = \$1 AND parent_id = \$2 ORDER BY id`).
		WithArgs("sub_area", "austin").
		WillReturnRows(rows)

	got, err := repo.SubAreas(context.Background(), "austin")
	require.NoError(t, err)
	require.Equal(t, []model.Place{{
		ID: "soco", Slug: "south-congress", Name: "South Congress",
		Kind: model.KindSubArea, ParentID: "austin", ListingCount: 12,
	}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAreas_NullParent(t *testing.T) {
	mock, repo := newMock(t)
	rows := pgxmock.NewRows(placeColumns).
		AddRow("austin", "austin-tx", "Austin", "area", (*string)(nil), 40)
	mock.ExpectQuery(`FROM places WHERE kind = \$1 ORDER BY id`).
		WithArgs("area").
		WillReturnRows(rows)

	got, err := repo.Areas(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].ParentID)
	assert.Equal(t, model.KindArea, got[0].Kind)
}

func TestPOIs(t *testing.T) {
	mock, repo := newMock(t)
	rows := pgxmock.NewRows(poiColumns).
		AddRow("p1", "park", 30.26, -97.75).
		AddRow("p2", "transit", 30.27, -97.74)
	mock.ExpectQuery(`SELECT id, category, lat, lng FROM pois ORDER BY id`).WillReturnRows(rows)

	got, err := repo.POIs(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.POIPark, got[0].Category)
	assert.InDelta(t, -97.74, got[1].Position.Lng, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}
