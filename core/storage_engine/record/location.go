package record

import "fmt"

// maxLocationPart bounds both halves of a Location.
const maxLocationPart = 1 << 16

// Location packs a page number and a record slot as (page << 16) | slot, the form
// secondary indexes store.
type Location int32

func EncodeLocation(page int32, slot int) (Location, error) {
	if page < 0 || page >= maxLocationPart || slot < 0 || slot >= maxLocationPart {
		return 0, fmt.Errorf("%w: page %d slot %d", ErrLocationOverflow, page, slot)
	}
	return Location(uint32(page)<<16 | uint32(slot)), nil
}

func (l Location) Decode() (page int32, slot int) {
	return int32(uint32(l) >> 16), int(uint32(l) & 0xFFFF)
}

func (l Location) String() string {
	page, slot := l.Decode()
	return fmt.Sprintf("%d:%d", page, slot)
}
