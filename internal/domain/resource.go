package domain

import "time"

type UnitKind string

const (
	UnitKindBookCopy    UnitKind = "book_copy"
	UnitKindSeat        UnitKind = "seat"
	UnitKindParkingSpot UnitKind = "parking_spot"
)

// Valid reports whether k is one of the known unit kinds.
func (k UnitKind) Valid() bool {
	switch k {
	case UnitKindBookCopy, UnitKindSeat, UnitKindParkingSpot:
		return true
	}
	return false
}

type SpotType string

const (
	SpotTypeStandard SpotType = "standard"
	SpotTypeHandicap SpotType = "handicap"
	SpotTypeElectric SpotType = "electric"
)

func (t SpotType) Valid() bool {
	switch t {
	case SpotTypeStandard, SpotTypeHandicap, SpotTypeElectric:
		return true
	}
	return false
}

// Attribute keys understood by the registry.
const (
	AttrBookID   = "bookId"
	AttrSection  = "section"
	AttrSpotType = "spotType"
)

// ResourceUnit is a single lendable or reservable thing: one physical copy of
// a book, one study seat, one parking spot. It carries no status; status is
// always derived from the ledger.
type ResourceUnit struct {
	ID               string            `json:"id"`
	Kind             UnitKind          `json:"kind"`
	Label            string            `json:"label"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	CreatedOn        time.Time         `json:"created_on"`
	DecommissionedOn *time.Time        `json:"decommissioned_on,omitempty"`
}

// TimeBoxed reports whether the unit is held through windowed reservations
// rather than open-ended checkouts.
func (u ResourceUnit) TimeBoxed() bool {
	return u.Kind == UnitKindSeat || u.Kind == UnitKindParkingSpot
}

func (u ResourceUnit) Attr(key string) string {
	if u.Attributes == nil {
		return ""
	}
	return u.Attributes[key]
}

// ReservationKind returns the ledger entry kind used to hold the unit.
func (u ResourceUnit) ReservationKind() EntryKind {
	switch u.Kind {
	case UnitKindSeat:
		return EntryKindSeatReservation
	case UnitKindParkingSpot:
		return EntryKindParkingReservation
	}
	return EntryKindCheckout
}

// UnitFilter narrows registry listings. Zero-valued fields match everything.
type UnitFilter struct {
	Kind     UnitKind
	BookID   string
	Section  string
	SpotType SpotType
}

func (f UnitFilter) Matches(u ResourceUnit) bool {
	if f.Kind != "" && u.Kind != f.Kind {
		return false
	}
	if f.BookID != "" && u.Attr(AttrBookID) != f.BookID {
		return false
	}
	if f.Section != "" && u.Attr(AttrSection) != f.Section {
		return false
	}
	if f.SpotType != "" && u.Attr(AttrSpotType) != string(f.SpotType) {
		return false
	}
	return true
}
