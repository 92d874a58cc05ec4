package taxonomy

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
)

const (
	Price1 BucketKey = "price_1"
	Price2 BucketKey = "price_2"
	Price3 BucketKey = "price_3"
	Price4 BucketKey = "price_4"
)

const (
	Rating3  BucketKey = "rating_3"
	Rating35 BucketKey = "rating_35"
	Rating4  BucketKey = "rating_4"
	Rating45 BucketKey = "rating_45"
)

const (
	Reviews10  BucketKey = "reviews_10"
	Reviews50  BucketKey = "reviews_50"
	Reviews100 BucketKey = "reviews_100"
	Reviews500 BucketKey = "reviews_500"
)

const (
	AmenityParking        = BucketKey(model.AmenityParking)
	AmenityWiFi           = BucketKey(model.AmenityWiFi)
	AmenityWheelchair     = BucketKey(model.AmenityWheelchair)
	AmenityOutdoorSeating = BucketKey(model.AmenityOutdoorSeating)
	AmenityReservations   = BucketKey(model.AmenityReservations)
	AmenityKids           = BucketKey(model.AmenityKids)
	AmenityAlcohol        = BucketKey(model.AmenityAlcohol)
	AmenityCreditCards    = BucketKey(model.AmenityCreditCards)
)

const (
	ServiceDineIn   = BucketKey(model.ServiceDineIn)
	ServiceTakeout  = BucketKey(model.ServiceTakeout)
	ServiceDelivery = BucketKey(model.ServiceDelivery)
)

const (
	HoursListed        BucketKey = "hours_listed"
	HoursOpenWeekends  BucketKey = "open_weekends"
	HoursOpenLate      BucketKey = "open_late"
	HoursOpenBreakfast BucketKey = "open_breakfast"
)

const (
	lateCloseMinute     = 22 * 60
	breakfastOpenMinute = 9 * 60
)

func priceBuckets() []Bucket {
	tier := func(t model.PriceTier) Predicate {
		return func(l model.Listing) bool { return l.Price == t }
	}
	return []Bucket{
		{Key: Price1, Label: "$", Match: tier(model.PriceInexpensive)},
		{Key: Price2, Label: "$$", Match: tier(model.PriceModerate)},
		{Key: Price3, Label: "$$$", Match: tier(model.PriceExpensive)},
		{Key: Price4, Label: "$$$$", Match: tier(model.PriceVeryExpensive)},
	}
}

func ratingBuckets() []Bucket {
	atLeast := func(min float64) Predicate {
		return func(l model.Listing) bool { return l.Rating != nil && *l.Rating >= min }
	}
	return []Bucket{
		{Key: Rating3, Label: "3.0+", Match: atLeast(3.0)},
		{Key: Rating35, Label: "3.5+", Match: atLeast(3.5)},
		{Key: Rating4, Label: "4.0+", Match: atLeast(4.0)},
		{Key: Rating45, Label: "4.5+", Match: atLeast(4.5)},
	}
}

func reviewBuckets() []Bucket {
	atLeast := func(min int) Predicate {
		return func(l model.Listing) bool { return l.ReviewCount != nil && *l.ReviewCount >= min }
	}
	return []Bucket{
		{Key: Reviews10, Label: "10+ reviews", Match: atLeast(10)},
		{Key: Reviews50, Label: "50+ reviews", Match: atLeast(50)},
		{Key: Reviews100, Label: "100+ reviews", Match: atLeast(100)},
		{Key: Reviews500, Label: "500+ reviews", Match: atLeast(500)},
	}
}

func amenityBuckets() []Bucket {
	has := func(a model.Amenity) Predicate {
		return func(l model.Listing) bool { return l.HasAmenity(a) }
	}
	return []Bucket{
		{Key: AmenityParking, Label: "Parking", Match: has(model.AmenityParking)},
		{Key: AmenityWiFi, Label: "Free Wi-Fi", Match: has(model.AmenityWiFi)},
		{Key: AmenityWheelchair, Label: "Wheelchair accessible", Match: has(model.AmenityWheelchair)},
		{Key: AmenityOutdoorSeating, Label: "Outdoor seating", Match: has(model.AmenityOutdoorSeating)},
		{Key: AmenityReservations, Label: "Takes reservations", Match: has(model.AmenityReservations)},
		{Key: AmenityKids, Label: "Good for kids", Match: has(model.AmenityKids)},
		{Key: AmenityAlcohol, Label: "Serves alcohol", Match: has(model.AmenityAlcohol)},
		{Key: AmenityCreditCards, Label: "Accepts credit cards", Match: has(model.AmenityCreditCards)},
	}
}

func serviceBuckets() []Bucket {
	offers := func(s model.ServiceMode) Predicate {
		return func(l model.Listing) bool { return l.Offers(s) }
	}
	return []Bucket{
		{Key: ServiceDineIn, Label: "Dine-in", Match: offers(model.ServiceDineIn)},
		{Key: ServiceTakeout, Label: "Takeout", Match: offers(model.ServiceTakeout)},
		{Key: ServiceDelivery, Label: "Delivery", Match: offers(model.ServiceDelivery)},
	}
}

func hoursBuckets() []Bucket {
	return []Bucket{
		{Key: HoursListed, Label: "Hours listed", Match: func(l model.Listing) bool {
			return len(l.Hours) > 0
		}},
		{Key: HoursOpenWeekends, Label: "Open weekends", Match: func(l model.Listing) bool {
			for _, h := range l.Hours {
				if h.Day == time.Saturday || h.Day == time.Sunday {
					return true
				}
			}
			return false
		}},
		{Key: HoursOpenLate, Label: "Open late", Match: func(l model.Listing) bool {
			for _, h := range l.Hours {
				if h.PastMidnight() || h.CloseMinute >= lateCloseMinute {
					return true
				}
			}
			return false
		}},
		{Key: HoursOpenBreakfast, Label: "Open for breakfast", Match: func(l model.Listing) bool {
			for _, h := range l.Hours {
				if h.OpenMinute <= breakfastOpenMinute {
					return true
				}
			}
			return false
		}},
	}
}

// Band is a distance band for proximity buckets. Bands are half-open: [0, Miles).
type Band string

const (
	BandQuarter Band = "qtr"
	BandHalf    Band = "half"
	BandMile    Band = "mile"
)

// ProximitySep joins category and band in a proximity bucket key.
const ProximitySep = ":"

var bandMiles = map[Band]float64{
	BandQuarter: 0.25,
	BandHalf:    0.5,
	BandMile:    1.0,
}

var bandLabels = map[Band]string{
	BandQuarter: "within 1/4 mi",
	BandHalf:    "within 1/2 mi",
	BandMile:    "within 1 mi",
}

// Bands returns bands tightest first
func Bands() []Band { return []Band{BandQuarter, BandHalf, BandMile} }

func (b Band) Miles() (float64, bool) {
	m, ok := bandMiles[b]
	return m, ok
}

var poiCategories = []model.POICategory{
	model.POITransit,
	model.POIPark,
	model.POIHotel,
	model.POIAttraction,
	model.POIShopping,
	model.POIUniversity,
}

var poiLabels = map[model.POICategory]string{
	model.POITransit:    "Transit",
	model.POIPark:       "Park",
	model.POIHotel:      "Hotel",
	model.POIAttraction: "Attraction",
	model.POIShopping:   "Shopping",
	model.POIUniversity: "University",
}

func POICategories() []model.POICategory { return poiCategories }

func IsPOICategory(c model.POICategory) bool {
	_, ok := poiLabels[c]
	return ok
}

// ProximityKey builds the composite key for a category and band
func ProximityKey(c model.POICategory, b Band) BucketKey {
	return BucketKey(string(c) + ProximitySep + string(b))
}

// SplitProximityKey parses "category:band". ok is false when either part is missing or unknown.
func SplitProximityKey(token string) (model.POICategory, Band, bool) {
	cat, band, found := strings.Cut(token, ProximitySep)
	if !found || cat == "" || band == "" {
		return "", "", false
	}
	c := model.POICategory(cat)
	b := Band(band)
	if !IsPOICategory(c) {
		return "", "", false
	}
	if _, ok := bandMiles[b]; !ok {
		return "", "", false
	}
	return c, b, true
}

func proximityBuckets() []Bucket {
	out := make([]Bucket, 0, len(poiCategories)*len(bandMiles))
	for _, c := range poiCategories {
		for _, b := range Bands() {
			limit := bandMiles[b]
			cat := c
			out = append(out, Bucket{
				Key:   ProximityKey(c, b),
				Label: poiLabels[c] + " " + bandLabels[b],
				Match: func(l model.Listing) bool {
					d, ok := l.NearestMiles(cat)
					return ok && d < limit
				},
			})
		}
	}
	return out
}
