package flows

import "github.com/MrEthical07/stepAuth/internal/rules"

// CodeBuffer is the cell buffer behind confirmation code entry. Every cell
// holds one ASCII digit or is empty. The zero value is unusable; use
// NewCodeBuffer.
type CodeBuffer struct {
	cells []byte
	focus int
}

func NewCodeBuffer(length int) *CodeBuffer {
	if length <= 0 {
		length = 1
	}
	return &CodeBuffer{cells: make([]byte, length)}
}

func (b *CodeBuffer) Len() int { return len(b.cells) }

func (b *CodeBuffer) Focus() int { return b.focus }

// SetFocus clamps i into the buffer.
func (b *CodeBuffer) SetFocus(i int) {
	switch {
	case i < 0:
		i = 0
	case i >= len(b.cells):
		i = len(b.cells) - 1
	}
	b.focus = i
}

// Type writes r into the focused cell and advances focus unless it already
// sits on the last cell. Non-digits are ignored.
func (b *CodeBuffer) Type(r rune) bool {
	if !rules.IsDigit(r) {
		return false
	}
	b.cells[b.focus] = byte(r)
	if b.focus < len(b.cells)-1 {
		b.focus++
	}
	return true
}

// Backspace clears the focused cell. On an already empty cell it moves focus
// back one position instead.
func (b *CodeBuffer) Backspace() {
	if b.cells[b.focus] != 0 {
		b.cells[b.focus] = 0
		return
	}
	if b.focus > 0 {
		b.focus--
	}
}

// Paste strips non-digits from s and fills consecutive cells from the focused
// one. Digits beyond the last cell are discarded. Focus lands on the next
// empty cell after the run, or on the last cell. It returns the number of
// digits placed.
func (b *CodeBuffer) Paste(s string) int {
	digits := rules.DigitsOnly(s)
	if digits == "" {
		return 0
	}

	i := b.focus
	placed := 0
	for ; i < len(b.cells) && placed < len(digits); i++ {
		b.cells[i] = digits[placed]
		placed++
	}

	b.focus = len(b.cells) - 1
	for j := i; j < len(b.cells); j++ {
		if b.cells[j] == 0 {
			b.focus = j
			break
		}
	}
	return placed
}

// Clear empties every cell and moves focus to the first one.
func (b *CodeBuffer) Clear() {
	for i := range b.cells {
		b.cells[i] = 0
	}
	b.focus = 0
}

// Cell returns the digit in cell i, or "" when it is empty.
func (b *CodeBuffer) Cell(i int) string {
	if i < 0 || i >= len(b.cells) || b.cells[i] == 0 {
		return ""
	}
	return string(b.cells[i])
}

// Code returns the filled cells in order, skipping empty ones.
func (b *CodeBuffer) Code() string {
	out := make([]byte, 0, len(b.cells))
	for _, c := range b.cells {
		if c != 0 {
			out = append(out, c)
		}
	}
	return string(out)
}

// Complete reports whether every cell holds a digit.
func (b *CodeBuffer) Complete() bool {
	for _, c := range b.cells {
		if c == 0 {
			return false
		}
	}
	return true
}
