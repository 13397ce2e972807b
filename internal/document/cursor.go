package document

// CursorState is the navigation state of a Cursor.
type CursorState string

const (
	StateIdle       CursorState = "idle"
	StateHasResults CursorState = "has_results"
)

// NoSelection is the cursor index when there are no results.
const NoSelection = -1

// Cursor tracks the current match within a search result set.
// The zero value is not ready; use NewCursor.
type Cursor struct {
	results []int
	index   int
}

// NewCursor returns an idle cursor.
func NewCursor() *Cursor {
	return &Cursor{index: NoSelection}
}

// Load replaces the result set. A non-empty set selects its first match.
func (c *Cursor) Load(results []int) {
	if len(results) == 0 {
		c.Reset()
		return
	}
	c.results = append(c.results[:0], results...)
	c.index = 0
}

// Reset clears the results and the selection.
func (c *Cursor) Reset() {
	c.results = nil
	c.index = NoSelection
}

// Next moves to the following match, wrapping to the first.
func (c *Cursor) Next() {
	n := len(c.results)
	if n == 0 {
		return
	}
	c.index = (c.index + 1) % n
}

// Prev moves to the preceding match, wrapping to the last.
func (c *Cursor) Prev() {
	n := len(c.results)
	if n == 0 {
		return
	}
	c.index = (c.index - 1 + n) % n
}

// State reports Idle or HasResults.
func (c *Cursor) State() CursorState {
	if len(c.results) == 0 {
		return StateIdle
	}
	return StateHasResults
}

// Index is the current position in the result set, or NoSelection.
func (c *Cursor) Index() int {
	return c.index
}

// Len is the number of results.
func (c *Cursor) Len() int {
	return len(c.results)
}

// Results returns a copy of the loaded offsets.
func (c *Cursor) Results() []int {
	out := make([]int, len(c.results))
	copy(out, c.results)
	return out
}

// Current returns the offset of the selected match.
func (c *Cursor) Current() (int, bool) {
	if c.index == NoSelection {
		return 0, false
	}
	return c.results[c.index], true
}

// Select jumps to index i. Out-of-range values are ignored.
func (c *Cursor) Select(i int) {
	if i < 0 || i >= len(c.results) {
		return
	}
	c.index = i
}
