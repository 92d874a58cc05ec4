// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"time"
)

type PriceTier int

const (
	PriceUnknown PriceTier = iota
	PriceInexpensive
	PriceModerate
	PriceExpensive
	PriceVeryExpensive
)

// String renders the tier the way listings display it ("$".."$$$$")
func (p PriceTier) String() string {
	switch p {
	case PriceInexpensive:
		return "$"
	case PriceModerate:
		return "$$"
	case PriceExpensive:
		return "$$$"
	case PriceVeryExpensive:
		return "$$$$"
	default:
		return ""
	}
}

// ParsePriceTier accepts "$".."$$$$" and "1".."4"
func ParsePriceTier(s string) PriceTier {
	switch s {
	case "$", "1":
		return PriceInexpensive
	case "$$", "2":
		return PriceModerate
	case "$$$", "3":
		return PriceExpensive
	case "$$$$", "4":
		return PriceVeryExpensive
	default:
		return PriceUnknown
	}
}

type Amenity string

const (
	AmenityParking        Amenity = "parking"
	AmenityWiFi           Amenity = "wifi"
	AmenityWheelchair     Amenity = "wheelchair"
	AmenityOutdoorSeating Amenity = "outdoor_seating"
	AmenityReservations   Amenity = "reservations"
	AmenityKids           Amenity = "kids"
	AmenityAlcohol        Amenity = "alcohol"
	AmenityCreditCards    Amenity = "credit_cards"
)

type ServiceMode string

const (
	ServiceDineIn   ServiceMode = "dine_in"
	ServiceTakeout  ServiceMode = "takeout"
	ServiceDelivery ServiceMode = "delivery"
)

type POICategory string

const (
	POITransit    POICategory = "transit"
	POIPark       POICategory = "park"
	POIHotel      POICategory = "hotel"
	POIAttraction POICategory = "attraction"
	POIShopping   POICategory = "shopping"
	POIUniversity POICategory = "university"
)

type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Position) IsZero() bool { return p.Lat == 0 && p.Lng == 0 }

func (p Position) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// DayHours is one opening interval in minutes after midnight.
// CloseMinute <= OpenMinute means the interval runs past midnight.
type DayHours struct {
	Day         time.Weekday `json:"day"`
	OpenMinute  int          `json:"open"`
	CloseMinute int          `json:"close"`
}

func (h DayHours) PastMidnight() bool { return h.CloseMinute <= h.OpenMinute }

type Listing struct {
	ID          string                  `json:"id"`
	Slug        string                  `json:"slug"`
	Name        string                  `json:"name"`
	Address     string                  `json:"address,omitempty"`
	AreaID      string                  `json:"area_id"`
	SubAreaID   string                  `json:"sub_area_id,omitempty"`
	Rating      *float64                `json:"rating,omitempty"`
	ReviewCount *int                    `json:"review_count,omitempty"`
	Price       PriceTier               `json:"price,omitempty"`
	Amenities   map[Amenity]bool        `json:"amenities,omitempty"`
	Services    map[ServiceMode]bool    `json:"services,omitempty"`
	Tags        []string                `json:"tags,omitempty"`
	Position    Position                `json:"position"`
	Hours       []DayHours              `json:"hours,omitempty"`
	Nearest     map[POICategory]float64 `json:"nearest,omitempty"`
}

func (l Listing) HasAmenity(a Amenity) bool { return l.Amenities[a] }

func (l Listing) Offers(s ServiceMode) bool { return l.Services[s] }

// NearestMiles returns the distance to the closest POI of the category
func (l Listing) NearestMiles(c POICategory) (float64, bool) {
	d, ok := l.Nearest[c]
	if !ok || d < 0 {
		return 0, false
	}
	return d, true
}

type PlaceKind string

const (
	KindVenue   PlaceKind = "venue"
	KindArea    PlaceKind = "area"
	KindSubArea PlaceKind = "sub_area"
)

// Place is an area or sub-area as shown in search suggestions.
type Place struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Kind         PlaceKind `json:"kind"`
	ParentID     string    `json:"parent_id,omitempty"`
	ListingCount int       `json:"listing_count,omitempty"`
}

// helpers for optional numeric attributes
func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
