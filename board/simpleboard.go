package board

// SimpleBoard is a minimal, best-effort implementation of State good
// enough to exercise the search core end-to-end. It implements basic
// stone placement, capture and single-move (positional) ko avoidance,
// but intentionally skips superko, seki adjudication and any scoring
// rule beyond simple area counting — those stay the job of the real
// board engine this module is built to plug into.
type SimpleBoard struct {
	size       int
	cells      []Color // row-major, size*size
	turn       Color
	moveNumber int
	lastMove   Move
	koPoint    int // -1 if none
	passes     int
	hash       Hash
	record     []Move // every move played, in order
}

// NewSimpleBoard returns an empty board of the given size (9, 13 or 19).
func NewSimpleBoard(size int) *SimpleBoard {
	return &SimpleBoard{
		size:    size,
		cells:   make([]Color, size*size),
		turn:    Black,
		koPoint: -1,
		hash:    zobristEmpty(size),
	}
}

func (b *SimpleBoard) Size() int        { return b.size }
func (b *SimpleBoard) ActionSpace() int { return b.size*b.size + 1 }
func (b *SimpleBoard) Hash() Hash       { return b.hash }
func (b *SimpleBoard) Turn() Color      { return b.turn }
func (b *SimpleBoard) MoveNumber() int  { return b.moveNumber }
func (b *SimpleBoard) LastMove() Move   { return b.lastMove }

// RecordedMove returns the move played movesAgo moves back (1 = the
// most recent move), or PassMove when the record is shorter than that.
// The search controller consults this for its consecutive-pass
// overrides.
func (b *SimpleBoard) RecordedMove(movesAgo int) Move {
	i := len(b.record) - movesAgo
	if movesAgo < 1 || i < 0 {
		return PassMove
	}
	return b.record[i]
}

func (b *SimpleBoard) idx(m Move) int { return int(m) - 1 }

func (b *SimpleBoard) Legal(m Move) bool {
	if m == PassMove {
		return true
	}
	i := b.idx(m)
	if i < 0 || i >= len(b.cells) {
		return false
	}
	if b.cells[i] != Empty {
		return false
	}
	if i == b.koPoint {
		return false
	}
	// Suicide check: placing must leave the played group, or capture
	// at least one opposing group, with a liberty.
	b.cells[i] = b.turn
	captured := b.captureDeadNeighbors(i, b.turn.Opponent())
	alive := b.groupHasLiberty(i)
	// undo
	for _, c := range captured {
		b.cells[c] = b.turn.Opponent()
	}
	b.cells[i] = Empty
	return alive || len(captured) > 0
}

func (b *SimpleBoard) LegalMoves() []Move {
	moves := make([]Move, 0, len(b.cells)+1)
	moves = append(moves, PassMove)
	for i := range b.cells {
		m := Move(i + 1)
		if b.Legal(m) {
			moves = append(moves, m)
		}
	}
	return moves
}

func (b *SimpleBoard) neighbors(i int) []int {
	var out []int
	row, col := i/b.size, i%b.size
	if row > 0 {
		out = append(out, i-b.size)
	}
	if row < b.size-1 {
		out = append(out, i+b.size)
	}
	if col > 0 {
		out = append(out, i-1)
	}
	if col < b.size-1 {
		out = append(out, i+1)
	}
	return out
}

// group returns every stone connected to i and whether the group has
// at least one liberty.
func (b *SimpleBoard) group(i int) (stones []int, hasLiberty bool) {
	color := b.cells[i]
	seen := map[int]bool{i: true}
	stack := []int{i}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stones = append(stones, cur)
		for _, n := range b.neighbors(cur) {
			if b.cells[n] == Empty {
				hasLiberty = true
			} else if b.cells[n] == color && !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return stones, hasLiberty
}

func (b *SimpleBoard) groupHasLiberty(i int) bool {
	_, ok := b.group(i)
	return ok
}

// CellColor returns the occupant at flat index i, satisfying the
// optional cellReader capability eval.DefaultEncoder probes for.
func (b *SimpleBoard) CellColor(i int) Color {
	if i < 0 || i >= len(b.cells) {
		return Empty
	}
	return b.cells[i]
}

// GroupPoints returns every point in the group occupying point i (0
// length if i is empty), the capability the ladder analyzer probes
// for.
func (b *SimpleBoard) GroupPoints(i int) []int {
	if i < 0 || i >= len(b.cells) || b.cells[i] == Empty {
		return nil
	}
	stones, _ := b.group(i)
	return stones
}

// GroupLiberties returns the liberty points of the group occupying i.
func (b *SimpleBoard) GroupLiberties(i int) []int {
	if i < 0 || i >= len(b.cells) || b.cells[i] == Empty {
		return nil
	}
	color := b.cells[i]
	seen := map[int]bool{i: true}
	libSeen := map[int]bool{}
	var libs []int
	stack := []int{i}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range b.neighbors(cur) {
			if b.cells[n] == Empty {
				if !libSeen[n] {
					libSeen[n] = true
					libs = append(libs, n)
				}
			} else if b.cells[n] == color && !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return libs
}

// captureDeadNeighbors removes any opponent-colored group adjacent to i
// that has no liberties, returning the removed point indices.
func (b *SimpleBoard) captureDeadNeighbors(i int, opponent Color) []int {
	var captured []int
	visited := map[int]bool{}
	for _, n := range b.neighbors(i) {
		if b.cells[n] != opponent || visited[n] {
			continue
		}
		stones, alive := b.group(n)
		for _, s := range stones {
			visited[s] = true
		}
		if !alive {
			for _, s := range stones {
				b.cells[s] = Empty
				captured = append(captured, s)
			}
		}
	}
	return captured
}

func (b *SimpleBoard) Apply(m Move) State {
	b.moveNumber++
	b.lastMove = m
	b.record = append(b.record, m)
	b.koPoint = -1
	if m == PassMove {
		b.passes++
		b.turn = b.turn.Opponent()
		return b
	}
	b.passes = 0
	i := b.idx(m)
	b.cells[i] = b.turn
	b.hash ^= zobristPoint(i, b.turn)
	captured := b.captureDeadNeighbors(i, b.turn.Opponent())
	for _, c := range captured {
		b.hash ^= zobristPoint(c, b.turn.Opponent())
	}
	if len(captured) == 1 {
		stones, _ := b.group(i)
		if len(stones) == 1 {
			b.koPoint = captured[0]
		}
	}
	b.turn = b.turn.Opponent()
	return b
}

func (b *SimpleBoard) Ended() (bool, Color) {
	if b.passes < 2 {
		return false, Empty
	}
	blackScore := b.Score(Black, 0)
	whiteScore := b.Score(White, 0)
	switch {
	case blackScore > whiteScore:
		return true, Black
	case whiteScore > blackScore:
		return true, White
	default:
		return true, Empty
	}
}

// Score returns a simple area count (stones + surrounded empty
// territory) for c, with komi applied when c == White.
func (b *SimpleBoard) Score(c Color, komi float32) float32 {
	var area float32
	visited := make([]bool, len(b.cells))
	for i, col := range b.cells {
		if col == c {
			area++
			continue
		}
		if col != Empty || visited[i] {
			continue
		}
		region, border := b.emptyRegion(i, visited)
		if border == c {
			area += float32(len(region))
		}
	}
	if c == White {
		area += komi
	}
	return area
}

// emptyRegion floods an empty region starting at i, returning the
// region's points and the single bordering color (Empty if the region
// touches both colors, meaning neutral / dame).
func (b *SimpleBoard) emptyRegion(i int, visited []bool) (region []int, border Color) {
	stack := []int{i}
	visited[i] = true
	seenColors := map[Color]bool{}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		region = append(region, cur)
		for _, n := range b.neighbors(cur) {
			switch {
			case b.cells[n] == Empty && !visited[n]:
				visited[n] = true
				stack = append(stack, n)
			case b.cells[n] != Empty:
				seenColors[b.cells[n]] = true
			}
		}
	}
	if len(seenColors) == 1 {
		for col := range seenColors {
			border = col
		}
	}
	return region, border
}

// IsSelfAtari reports whether c playing at point would leave the
// resulting group with exactly one liberty, the building block of seki
// candidate detection. The probe is applied and undone in place.
func (b *SimpleBoard) IsSelfAtari(c Color, point int) bool {
	if point < 0 || point >= len(b.cells) || b.cells[point] != Empty {
		return false
	}
	b.cells[point] = c
	captured := b.captureDeadNeighbors(point, c.Opponent())
	libs := b.GroupLiberties(point)
	for _, cap := range captured {
		b.cells[cap] = c.Opponent()
	}
	b.cells[point] = Empty
	return len(libs) == 1
}

func (b *SimpleBoard) Clone() State {
	cp := *b
	cp.cells = append([]Color(nil), b.cells...)
	cp.record = append([]Move(nil), b.record...)
	return &cp
}

func (b *SimpleBoard) Eq(other State) bool {
	o, ok := other.(*SimpleBoard)
	if !ok {
		return false
	}
	return b.hash == o.hash && b.turn == o.turn && b.moveNumber == o.moveNumber
}

// zobristPoint derives the point/color hash key purely from its
// arguments, so concurrent search workers cloning and applying boards
// never share mutable hashing state.
func zobristPoint(point int, c Color) Hash {
	x := uint64(point)*2654435761 + 0x9E3779B97F4A7C15
	for i := Color(0); i <= c; i++ {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
	}
	return Hash(x)
}

func zobristEmpty(size int) Hash {
	return Hash(size) * 0x1000000001
}
