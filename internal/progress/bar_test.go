package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func lastLine(buf *bytes.Buffer) string {
	frames := strings.Split(buf.String(), "\r")
	return frames[len(frames)-1]
}

func TestBar_Update(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, "Restoring snapshot")

	b.Update(150, 120)
	assert.Equal(t, "Restoring snapshot [========================>     ] 120/150  80%", lastLine(&buf))

	b.Update(150, 150)
	assert.Equal(t, "Restoring snapshot ["+strings.Repeat("=", 30)+"] 150/150 100%", lastLine(&buf))

	b.Done()
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestBar_IgnoresZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, "Restoring snapshot")

	b.Update(0, 0)
	b.Done()
	assert.Empty(t, buf.String())
}

func TestBar_NeverMovesBackwards(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, "x")

	b.Update(10, 6)
	b.Update(10, 4)
	assert.Contains(t, lastLine(&buf), " 6/10 ")

	// a new total starts over
	b.Update(20, 4)
	assert.Contains(t, lastLine(&buf), " 4/20 ")
}
