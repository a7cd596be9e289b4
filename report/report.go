// Package report formats the result of a simulation run.
package report

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/snoopsim/simulation"
	"github.com/sarchlab/snoopsim/timing/coherence"
)

// Output formats accepted by Write.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// Write prints r to w in the given format.
func Write(w io.Writer, format string, r simulation.Result) error {
	switch strings.ToLower(format) {
	case FormatText, "":
		return WriteText(w, r)
	case FormatYAML:
		return WriteYAML(w, r)
	default:
		return fmt.Errorf("unknown output format %q (valid: %s, %s)",
			format, FormatText, FormatYAML)
	}
}

// WriteYAML prints r as a YAML document.
func WriteYAML(w io.Writer, r simulation.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

// WriteText prints the per-core and bus statistics of r.
func WriteText(w io.Writer, r simulation.Result) error {
	p := &printer{w: w}

	p.printf("Protocol: %s\n", r.Protocol)
	p.printf("Total Cycles: %d\n", r.Cycles)

	for i, c := range r.Cores {
		p.printf("\n")
		p.printf("Core %d:\n", i)
		p.printf("  Finished at cycle:  %d\n", c.FinishedAt)
		p.printf("  Instructions:       %d\n", c.Instructions)
		p.printf("  Loads:              %d\n", c.Loads)
		p.printf("  Stores:             %d\n", c.Stores)
		p.printf("  Compute cycles:     %d\n", c.ComputeCycles)
		p.printf("  Idle cycles:        %d\n", c.IdleCycles)
		p.printf("  Hits:               %d\n", c.Hits)
		p.printf("  Misses:             %d\n", c.Misses)
		p.printf("  Upgrades:           %d\n", c.Upgrades)
		p.printf("  Miss rate:          %.2f%%\n", 100*c.MissRate())
		p.printf("  Private accesses:   %d (%5.1f%%)\n",
			c.PrivateAccesses, percent(c.PrivateAccesses, c.Accesses()))
		p.printf("  Shared accesses:    %d (%5.1f%%)\n",
			c.SharedAccesses, percent(c.SharedAccesses, c.Accesses()))
	}

	p.printf("\n")
	p.printf("Bus:\n")
	p.printf("  Data traffic:       %d bytes\n", r.Bus.DataTraffic)
	if r.Protocol == coherence.NameDragon {
		p.printf("  Updates:            %d\n", r.Bus.Updates)
	} else {
		p.printf("  Invalidations:      %d\n", r.Bus.Invalidations)
	}
	p.printf("  Transactions:       %d\n", r.Bus.Transactions)

	return p.err
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
