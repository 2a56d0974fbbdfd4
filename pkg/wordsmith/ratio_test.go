package wordsmith_test

import (
	"testing"

	"github.com/wordsmithlabs/wordsmith/pkg/wordsmith"
)

func TestRatioTable_RequiredCredits(t *testing.T) {
	table := wordsmith.DefaultRatioTable()

	tests := []struct {
		name     string
		words    int
		toolType string
		op       wordsmith.Operation
		want     int64
	}{
		{"writing exact multiple", 210, "writing", wordsmith.OperationGeneration, 70},
		{"writing rounds up", 211, "writing", wordsmith.OperationGeneration, 71},
		{"writing single word", 1, "writing", wordsmith.OperationGeneration, 1},
		{"paraphrasing", 500, "paraphrasing", wordsmith.OperationGeneration, 100},
		{"summarizing", 800, "summarizing", wordsmith.OperationGeneration, 100},
		{"grammar", 1000, "grammar", wordsmith.OperationGeneration, 100},
		{"unknown tool uses default ratio", 500, "mystery", wordsmith.OperationGeneration, 100},
		{"detection per 1000 words", 1000, "detection", wordsmith.OperationDetection, 50},
		{"detection rounds up", 1001, "detection", wordsmith.OperationDetection, 51},
		{"detection small document", 10, "detection", wordsmith.OperationDetection, 1},
		{"zero words", 0, "writing", wordsmith.OperationGeneration, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.RequiredCredits(tt.words, tt.toolType, tt.op)
			if got != tt.want {
				t.Errorf("RequiredCredits(%d, %q, %q) = %d, want %d",
					tt.words, tt.toolType, tt.op, got, tt.want)
			}
		})
	}
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"two words", 2},
		{"  leading and\ttrailing \n whitespace  ", 4},
	}

	for _, tt := range tests {
		if got := wordsmith.CountWords(tt.text); got != tt.want {
			t.Errorf("CountWords(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
