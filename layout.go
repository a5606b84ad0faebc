package vcf2bgen

// Layout is a versioned variant structure outlined by the BGEN spec. This
// package writes Layout2 exclusively; Layout1 is recognized when reading so
// that foreign files fail with a useful message instead of garbage offsets.
type Layout uint32

const (
	Layout1 Layout = iota + 1
	Layout2
)

func (l Layout) String() string {
	switch l {
	case Layout1:
		return "Layout1"
	case Layout2:
		return "Layout2"

	default:
		return "Illegal selection"
	}
}
