package wordsmith

// detectionCreditsPerThousand is the flat detection price: 50 credits per
// 1000 words scanned, rounded up.
const detectionCreditsPerThousand = 50

// RatioTable maps tool types to their words-per-credit divisor.
// Detection-type operations ignore the table and use the per-1000-word
// formula instead.
type RatioTable struct {
	// WordsPerCredit maps a tool type to how many words one credit buys
	WordsPerCredit map[string]int64

	// DefaultWordsPerCredit is used for tool types missing from the table
	DefaultWordsPerCredit int64
}

// DefaultRatioTable returns the standard pricing table.
func DefaultRatioTable() RatioTable {
	return RatioTable{
		WordsPerCredit: map[string]int64{
			"writing":      3,
			"paraphrasing": 5,
			"summarizing":  8,
			"grammar":      10,
		},
		DefaultWordsPerCredit: 5,
	}
}

// RequiredCredits computes the credit cost for processing the given number
// of words: ceil(words / ratio) for generation, ceil(words/1000 * 50) for
// detection. Pure function, no I/O.
func (t RatioTable) RequiredCredits(words int, toolType string, op Operation) int64 {
	if words <= 0 {
		return 0
	}
	w := int64(words)

	if op == OperationDetection {
		return (w*detectionCreditsPerThousand + 999) / 1000
	}

	ratio, ok := t.WordsPerCredit[toolType]
	if !ok || ratio <= 0 {
		ratio = t.DefaultWordsPerCredit
	}
	if ratio <= 0 {
		ratio = 1
	}
	return (w + ratio - 1) / ratio
}
