package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/bufmap"
	"github.com/wippyai/bufmap/config"
)

var cmdDemo = &cobra.Command{
	Use:   "demo",
	Short: "Run the collision and promotion walkthrough",
	Long: `
The "demo" command builds a table with capacity 4 on the configured memory
backend and hash, maps one draw buffer into each bucket, adds a fifth that
collides with the first, then removes the first so the collider is promoted
into the primary slot. It finishes by tearing the table down and checking
that no draw buffer or GPU buffer is left behind.

EXIT STATUS
===========

Exit status is 0 if the walkthrough completed and nothing leaked.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.Context(), globalOptions.cfg, os.Stdout)
	},
}

func init() {
	cmdRoot.AddCommand(cmdDemo)
}

const (
	demoBuckets = 4
	demoBufSize = 256
	demoProbes  = 1024
)

var stepStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#7D56F4"))

func runDemo(ctx context.Context, cfg config.Config, out io.Writer) (err error) {
	cfg.Table.Capacity = demoBuckets
	cfg.Table.Buckets = demoBuckets

	e, err := newEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	keys, err := demoKeys(e)
	if err != nil {
		return err
	}
	names := []string{"A", "B", "C", "D", "E"}

	step(out, "insert A..D into buckets 0..3, then E colliding with A")
	for i, k := range keys {
		h, err := e.pool.Alloc(demoBufSize)
		if err != nil {
			return err
		}
		if err := e.table.Insert(k, h); err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s = %s -> %s (bucket %d)\n", names[i], hex(uint32(k)), hex(uint32(h)), e.table.Index(k))
	}
	fmt.Fprintf(out, "  count %d, len %d\n", e.table.Count(), e.table.Len())
	fmt.Fprintln(out, renderDump(e))

	step(out, "find E through the chain")
	if h, ok := e.table.Find(keys[4]); ok {
		fmt.Fprintf(out, "  E -> %s\n", hex(uint32(h)))
	} else {
		return fmt.Errorf("E not found after insert")
	}

	step(out, "remove A, promoting E")
	e.table.Remove(keys[0])
	if _, ok := e.table.Find(keys[0]); ok {
		return fmt.Errorf("A still present after remove")
	}
	slots := e.table.Dump()
	if len(slots) == 0 || slots[0].Key != keys[4] || slots[0].Depth != 0 {
		return fmt.Errorf("E was not promoted into bucket 0")
	}
	fmt.Fprintf(out, "  count %d, len %d\n", e.table.Count(), e.table.Len())
	fmt.Fprintln(out, renderDump(e))

	step(out, "close")
	if err := e.table.Close(); err != nil {
		return err
	}
	if n, m := e.alloc.Live(), e.pool.Live(); n != 0 || m != 0 {
		return fmt.Errorf("leak after close: %d blocks, %d buffers", n, m)
	}
	fmt.Fprintln(out, renderStats(e))
	fmt.Fprintln(out, "  no leaks")
	return nil
}

// demoKeys allocates draw buffers until one lands in each bucket and a fifth
// shares bucket 0. Draw buffers that were not picked are freed.
func demoKeys(e *env) ([]bufmap.Key, error) {
	keys := make([]bufmap.Key, demoBuckets+1)
	var spares []bufmap.Key
	defer func() {
		for _, k := range spares {
			_ = e.alloc.Free(uint32(k))
		}
	}()

	found := 0
	for probe := 0; found < len(keys); probe++ {
		if probe == demoProbes {
			for _, k := range keys {
				if k != 0 {
					spares = append(spares, k)
				}
			}
			return nil, fmt.Errorf("no collision layout after %d draw buffers", demoProbes)
		}

		k, err := e.newDrawBuf(demoBufSize)
		if err != nil {
			return nil, err
		}
		switch idx := e.table.Index(k); {
		case keys[idx] == 0:
			keys[idx] = k
			found++
		case idx == 0 && keys[demoBuckets] == 0:
			keys[demoBuckets] = k
			found++
		default:
			spares = append(spares, k)
		}
	}
	return keys, nil
}

func step(out io.Writer, title string) {
	fmt.Fprintln(out, stepStyle.Render("== "+title))
}
