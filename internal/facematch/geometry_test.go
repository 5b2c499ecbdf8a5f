package facematch

import (
	"math"
	"testing"
)

func TestBBoxArea(t *testing.T) {
	tests := []struct {
		name     string
		bbox     []float64
		expected float64
	}{
		{
			name:     "square",
			bbox:     []float64{0, 0, 10, 10},
			expected: 100,
		},
		{
			name:     "offset rectangle",
			bbox:     []float64{5, 10, 15, 40},
			expected: 300,
		},
		{
			name:     "inverted box",
			bbox:     []float64{10, 10, 0, 0},
			expected: 0,
		},
		{
			name:     "invalid bbox",
			bbox:     []float64{0, 0, 10},
			expected: 0,
		},
		{
			name:     "empty bbox",
			bbox:     []float64{},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BBoxArea(tt.bbox)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("BBoxArea(%v) = %v, want %v", tt.bbox, result, tt.expected)
			}
		})
	}
}

func TestLargestBBox(t *testing.T) {
	tests := []struct {
		name     string
		boxes    [][]float64
		expected int
	}{
		{
			name:     "no boxes",
			boxes:    nil,
			expected: -1,
		},
		{
			name:     "single box",
			boxes:    [][]float64{{0, 0, 1, 1}},
			expected: 0,
		},
		{
			name:     "largest in the middle",
			boxes:    [][]float64{{0, 0, 10, 10}, {0, 0, 50, 50}, {0, 0, 20, 20}},
			expected: 1,
		},
		{
			name:     "tie keeps first",
			boxes:    [][]float64{{0, 0, 10, 10}, {5, 5, 15, 15}},
			expected: 0,
		},
		{
			name:     "malformed boxes still selectable",
			boxes:    [][]float64{{1, 2}, {}},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LargestBBox(tt.boxes); got != tt.expected {
				t.Errorf("LargestBBox() = %d, want %d", got, tt.expected)
			}
		})
	}
}
