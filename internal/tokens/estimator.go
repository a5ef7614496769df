// Package tokens estimates token counts for context bookkeeping.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	. "github.com/gateward/gateward/internal/logging"
)

const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// Estimate returns the token count of text. When the encoder cannot be
// loaded it falls back to a bytes/4 heuristic, which overshoots rather
// than undershoots for typical prose.
func Estimate(text string) int {
	encOnce.Do(func() {
		var err error
		enc, err = tiktoken.GetEncoding(encodingName)
		if err != nil {
			L_warn("failed to load %s encoding, using heuristic: %v", encodingName, err)
		}
	})
	if enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateAll sums the estimates of several texts.
func EstimateAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}
