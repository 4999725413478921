package progress

import (
	"fmt"
	"io"
	"strings"
)

const defaultWidth = 30

// Bar renders restore progress as a single redrawn terminal line.
// It never moves backwards for the same total.
type Bar struct {
	out   io.Writer
	label string
	width int

	total   int64
	current int64
	drawn   bool
}

// NewBar creates a bar that writes to out.
func NewBar(out io.Writer, label string) *Bar {
	return &Bar{out: out, label: label, width: defaultWidth}
}

// Update sets the bar to current of total and redraws it.
func (b *Bar) Update(total, current int64) {
	if total <= 0 {
		return
	}
	if current > total {
		current = total
	}
	if total == b.total && current < b.current {
		current = b.current
	}
	b.total = total
	b.current = current
	b.draw()
}

// Done ends the bar's line if anything was drawn.
func (b *Bar) Done() {
	if b.drawn {
		fmt.Fprintln(b.out)
		b.drawn = false
	}
}

func (b *Bar) draw() {
	ratio := float64(b.current) / float64(b.total)
	filled := int(ratio * float64(b.width))

	var bar strings.Builder
	bar.WriteString(strings.Repeat("=", filled))
	if filled < b.width {
		bar.WriteString(">")
		bar.WriteString(strings.Repeat(" ", b.width-filled-1))
	}

	fmt.Fprintf(b.out, "\r%s [%s] %d/%d %3.0f%%", b.label, bar.String(), b.current, b.total, ratio*100)
	b.drawn = true
}
