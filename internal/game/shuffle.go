// internal/game/shuffle.go
//
// Board dealing for new games.
// Responsibilities:
//   - Build the deck holding each value 1..Pairs twice.
//   - Shuffle it with Fisher–Yates using crypto/rand.
//
// Notes:
//   - A failing platform RNG panics; there is no sensible fallback board.

package game

import (
	"crypto/rand"
	"math/big"
)

// shuffledValues deals the pairs 1..Pairs into the grid in row-major order
// after a Fisher–Yates shuffle.
func shuffledValues() [Rows][Cols]int {
	deck := make([]int, 0, Rows*Cols)
	for v := 1; v <= Pairs; v++ {
		deck = append(deck, v, v)
	}
	for i := len(deck) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}

	var out [Rows][Cols]int
	for i, v := range deck {
		out[i/Cols][i%Cols] = v
	}
	return out
}

// randIntn returns a uniform int in [0, n) from crypto/rand.
func randIntn(n int) int {
	x, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand failing means the platform RNG is broken.
		panic(err)
	}
	return int(x.Int64())
}
