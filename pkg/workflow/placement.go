package workflow

// Canvas placement constants. Nodes are treated as fixed-size boxes anchored
// at their top-left position.
const (
	NodeWidth       = 280
	NodeHeight      = 120
	MaxPlacementTry = 100
)

var (
	// DefaultPosition is where the first probe for a new node lands.
	DefaultPosition = Position{X: 350, Y: 200}
	// PlacementStep is the offset applied between probes.
	PlacementStep = Position{X: 30, Y: 30}
)

// FindPosition returns the first probed position whose box overlaps no
// existing node. After MaxPlacementTry probes the last one is returned
// regardless; placement never fails.
func FindPosition(nodes []Node) Position {
	pos := DefaultPosition
	for i := 0; i < MaxPlacementTry; i++ {
		pos = Position{
			X: DefaultPosition.X + float64(i)*PlacementStep.X,
			Y: DefaultPosition.Y + float64(i)*PlacementStep.Y,
		}
		if !overlapsAny(pos, nodes) {
			return pos
		}
	}
	return pos
}

func overlapsAny(pos Position, nodes []Node) bool {
	for _, n := range nodes {
		if overlaps(pos, n.Position) {
			return true
		}
	}
	return false
}

func overlaps(a, b Position) bool {
	return a.X < b.X+NodeWidth && b.X < a.X+NodeWidth &&
		a.Y < b.Y+NodeHeight && b.Y < a.Y+NodeHeight
}
