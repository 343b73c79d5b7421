package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigest(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Submission
		equal bool
	}{
		{"identical", Submission{FieldArithmetic, "A"}, Submission{FieldArithmetic, "A"}, true},
		{"different payload", Submission{FieldArithmetic, "A"}, Submission{FieldArithmetic, "B"}, false},
		{"different field", Submission{FieldArithmetic, "A"}, Submission{FieldAlgebra, "A"}, false},
		{"case sensitive", Submission{FieldArithmetic, "a"}, Submission{FieldArithmetic, "A"}, false},
		{"nfc equivalent", Submission{FieldArithmetic, "\u00c5"}, Submission{FieldArithmetic, "A\u030a"}, true},
		// Field/payload boundary is unambiguous
		{"boundary", Submission{Field("ab"), "c"}, Submission{Field("a"), "bc"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			da := Digest(tt.a.Field, tt.a.Payload)
			db := Digest(tt.b.Field, tt.b.Payload)
			assert.Len(t, da, 64)
			if tt.equal {
				assert.Equal(t, da, db)
			} else {
				assert.NotEqual(t, da, db)
			}
		})
	}
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, ID(1), c.Next())
	assert.Equal(t, ID(2), c.Next())
	assert.Equal(t, ID(2), c.Current())

	c.advanceTo(10)
	assert.Equal(t, ID(11), c.Next())

	c.advanceTo(5)
	assert.Equal(t, ID(11), c.Current(), "clock never moves backwards")

	resumed := NewClockAt(100)
	assert.Equal(t, ID(101), resumed.Next())
}
