package cipher

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
)

const (
	// MinShift is the smallest shift a generated puzzle uses.
	MinShift = 1
	// DefaultMaxShift keeps generated puzzles solvable by hand.
	DefaultMaxShift = 5
	// MaxShift is the largest meaningful Caesar shift.
	MaxShift = 25
)

// DefaultWords is the fixed plaintext catalog puzzles are drawn from.
var DefaultWords = []string{"HELLO", "WORLD", "PYTHON", "LAMBDA", "SECURE", "SYSTEM"}

var (
	ErrEmptyCatalog  = errors.New("cipher: word catalog is empty")
	ErrInvalidWord   = errors.New("cipher: catalog words must be non-empty uppercase A-Z")
	ErrInvalidShift  = errors.New("cipher: max shift must be within [1,25]")
	ErrRandomFailure = errors.New("cipher: random source failed")
)

// Puzzle is one Caesar challenge. Ciphertext is Plaintext shifted forward by Shift.
type Puzzle struct {
	Plaintext  string
	Shift      int
	Ciphertext string
}

// Valid reports whether the puzzle's ciphertext decodes back to its plaintext.
func (p Puzzle) Valid() bool {
	return p.Plaintext != "" && Decode(p.Ciphertext, p.Shift) == p.Plaintext
}

// Solves reports whether answer, uppercased, is exactly the plaintext.
func (p Puzzle) Solves(answer string) bool {
	return p.Plaintext != "" && strings.ToUpper(answer) == p.Plaintext
}

// Generator draws puzzles from a word catalog.
type Generator struct {
	words    []string
	maxShift int
	rnd      io.Reader
}

// NewGenerator validates the catalog and shift bound. A nil rnd uses crypto/rand.
func NewGenerator(words []string, maxShift int, rnd io.Reader) (*Generator, error) {
	if len(words) == 0 {
		return nil, ErrEmptyCatalog
	}
	for _, w := range words {
		if !isUpperWord(w) {
			return nil, ErrInvalidWord
		}
	}
	if maxShift < MinShift || maxShift > MaxShift {
		return nil, ErrInvalidShift
	}
	if rnd == nil {
		rnd = rand.Reader
	}

	catalog := make([]string, len(words))
	copy(catalog, words)
	return &Generator{words: catalog, maxShift: maxShift, rnd: rnd}, nil
}

// Contains reports whether word is in the catalog.
func (g *Generator) Contains(word string) bool {
	for _, w := range g.words {
		if w == word {
			return true
		}
	}
	return false
}

// PickRandomWord returns a uniformly chosen catalog word.
func (g *Generator) PickRandomWord() (string, error) {
	n, err := g.uniform(len(g.words))
	if err != nil {
		return "", err
	}
	return g.words[n], nil
}

// PickRandomShift returns a uniform shift in [MinShift, maxShift].
func (g *Generator) PickRandomShift() (int, error) {
	n, err := g.uniform(g.maxShift)
	if err != nil {
		return 0, err
	}
	return n + MinShift, nil
}

// NewPuzzle draws a fresh plaintext/shift pair and encodes it.
func (g *Generator) NewPuzzle() (Puzzle, error) {
	word, err := g.PickRandomWord()
	if err != nil {
		return Puzzle{}, err
	}
	shift, err := g.PickRandomShift()
	if err != nil {
		return Puzzle{}, err
	}
	return Puzzle{
		Plaintext:  word,
		Shift:      shift,
		Ciphertext: Encode(word, shift),
	}, nil
}

func (g *Generator) uniform(n int) (int, error) {
	v, err := rand.Int(g.rnd, big.NewInt(int64(n)))
	if err != nil {
		return 0, errors.Join(ErrRandomFailure, err)
	}
	return int(v.Int64()), nil
}

func isUpperWord(w string) bool {
	if w == "" {
		return false
	}
	for i := 0; i < len(w); i++ {
		if w[i] < 'A' || w[i] > 'Z' {
			return false
		}
	}
	return true
}
