package shared

// Direction represents the direction of a daily candle.
type Direction int

const (
	Rise Direction = iota
	Fall
)

// String stringifies the provided direction.
func (d Direction) String() string {
	switch d {
	case Rise:
		return "rise"
	case Fall:
		return "fall"
	default:
		return "unknown"
	}
}
