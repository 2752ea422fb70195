package reporter

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"powchain/core"

	"github.com/fatih/color"
)

// ChainSource supplies the chain listing printed after each block.
type ChainSource interface {
	Blocks() []*core.Block
}

// Console prints a human-readable progress report for every mined block.
type Console struct {
	out        io.Writer
	chain      ChainSource
	printChain bool
	lastBlock  time.Time
	mu         sync.Mutex

	header *color.Color
	label  *color.Color
	value  *color.Color
}

// NewConsole writes to out (stdout when nil). When printChain is set the full
// chain from src is listed after every block.
func NewConsole(out io.Writer, src ChainSource, printChain bool) *Console {
	if out == nil {
		out = color.Output
	}
	return &Console{
		out:        out,
		chain:      src,
		printChain: printChain && src != nil,
		lastBlock:  time.Now(),
		header:     color.New(color.FgCyan, color.Bold),
		label:      color.New(color.FgYellow),
		value:      color.New(color.FgGreen),
	}
}

// BlockMined implements core.BlockSink.
func (c *Console) BlockMined(_ context.Context, block *core.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastBlock)
	c.lastBlock = time.Now()

	c.header.Fprintf(c.out, "⛏️  Block #%d mined: %s\n", block.Number, block.Hash)
	c.line("Difficulty", "%d (required > %d)", block.Difficulty, block.Required)
	c.line("Nonce", "%s", block.Nonce)
	c.line("Iterations needed", "%d", block.Attempts)
	if secs := elapsed.Seconds(); secs > 0 {
		c.line("Elapsed", "%v (%.0f H/s)", elapsed.Round(time.Millisecond), float64(block.Attempts)/secs)
	}

	if c.printChain {
		c.writeChain()
	}
	return nil
}

func (c *Console) line(name, format string, args ...interface{}) {
	c.label.Fprintf(c.out, "  %-18s ", name+":")
	c.value.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) writeChain() {
	rule := strings.Repeat("-", 74)
	c.header.Fprintln(c.out, rule)
	c.header.Fprintln(c.out, "Chain:")
	for _, b := range c.chain.Blocks() {
		c.line("Previous Hash", "%s", b.PreviousHash)
		c.line("Nonce", "%s", b.Nonce)
		c.line("Hash Created", "%s", b.Hash)
		io.WriteString(c.out, "\n")
	}
	c.header.Fprintln(c.out, rule)
}

// DisableColor turns off escape codes, e.g. when stdout is not a terminal.
func DisableColor() {
	color.NoColor = true
}

// IsTerminal reports whether stdout looks like an interactive terminal.
func IsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// PrintChain writes the full chain listing once.
func (c *Console) PrintChain() {
	if c.chain == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeChain()
}
