package cmd

import (
	"strconv"

	"github.com/pterm/pterm"
)

// progresser counts the imported messages on a spinner
type progresser struct {
	spinner *pterm.SpinnerPrinter
	count   int
}

func newSpinnerProgresser(spinner *pterm.SpinnerPrinter) *progresser {
	return &progresser{
		spinner: spinner,
	}
}

func (p *progresser) Increment() {
	p.count++
	if p.spinner != nil {
		p.spinner.UpdateText(strconv.Itoa(p.count) + " messages")
	}
}

func (p *progresser) Stop() {
	if p.spinner != nil {
		_ = p.spinner.Stop()
	}
}
