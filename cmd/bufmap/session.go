package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/wippyai/bufmap"
)

// session interprets table commands against an env, one line at a time.
// It remembers which keys it handed to the table so that insert can only
// reuse draw buffers the table owns.
type session struct {
	env  *env
	out  io.Writer
	keys map[bufmap.Key]struct{}
}

func newSession(e *env, out io.Writer) *session {
	return &session{env: e, out: out, keys: make(map[bufmap.Key]struct{})}
}

const sessionHelp = `commands:
  alloc <size>         allocate a draw buffer and a GPU buffer, map them
  insert <key> <size>  map a new GPU buffer to an existing key
  find <key>           look up the GPU buffer of a key
  remove <key>         unmap a key and release both buffers
  dump                 show every bucket
  stats                show table, pool and allocator counters
  help                 show this text`

// Exec runs one command line. Blank lines and lines starting with # are ignored.
func (s *session) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "alloc":
		if err := wantArgs(cmd, args, 1); err != nil {
			return err
		}
		size, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return s.alloc(size)

	case "insert":
		if err := wantArgs(cmd, args, 2); err != nil {
			return err
		}
		key, err := parseUint(args[0])
		if err != nil {
			return err
		}
		size, err := parseUint(args[1])
		if err != nil {
			return err
		}
		return s.insert(bufmap.Key(key), size)

	case "find":
		if err := wantArgs(cmd, args, 1); err != nil {
			return err
		}
		key, err := parseUint(args[0])
		if err != nil {
			return err
		}
		s.find(bufmap.Key(key))
		return nil

	case "remove":
		if err := wantArgs(cmd, args, 1); err != nil {
			return err
		}
		key, err := parseUint(args[0])
		if err != nil {
			return err
		}
		s.remove(bufmap.Key(key))
		return nil

	case "dump":
		fmt.Fprintln(s.out, renderDump(s.env))
		return nil

	case "stats":
		fmt.Fprintln(s.out, renderStats(s.env))
		return nil

	case "help":
		fmt.Fprintln(s.out, sessionHelp)
		return nil
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

func (s *session) alloc(size uint32) error {
	key, err := s.env.newDrawBuf(size)
	if err != nil {
		return err
	}
	h, err := s.env.pool.Alloc(size)
	if err != nil {
		_ = s.env.alloc.Free(uint32(key))
		return err
	}

	// The table owns key and h from here on, even on error.
	if err := s.env.table.Insert(key, h); err != nil {
		return err
	}
	s.keys[key] = struct{}{}
	fmt.Fprintf(s.out, "%s -> %s (bucket %d)\n", hex(uint32(key)), hex(uint32(h)), s.env.table.Index(key))
	return nil
}

func (s *session) insert(key bufmap.Key, size uint32) error {
	if _, ok := s.keys[key]; !ok {
		return fmt.Errorf("key %s is not mapped; use alloc first", hex(uint32(key)))
	}
	h, err := s.env.pool.Alloc(size)
	if err != nil {
		return err
	}
	if err := s.env.table.Insert(key, h); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s -> %s (updated)\n", hex(uint32(key)), hex(uint32(h)))
	return nil
}

func (s *session) find(key bufmap.Key) {
	h, ok := s.env.table.Find(key)
	if !ok {
		fmt.Fprintf(s.out, "%s: not found\n", hex(uint32(key)))
		return
	}
	if buf, ok := s.env.pool.Buffer(h); ok {
		fmt.Fprintf(s.out, "%s -> %s (%d bytes at %s)\n", hex(uint32(key)), hex(uint32(h)), buf.Size, hex(buf.Addr))
		return
	}
	fmt.Fprintf(s.out, "%s -> %s\n", hex(uint32(key)), hex(uint32(h)))
}

func (s *session) remove(key bufmap.Key) {
	if !s.env.table.Remove(key) {
		fmt.Fprintf(s.out, "%s: not found\n", hex(uint32(key)))
		return
	}
	delete(s.keys, key)
	fmt.Fprintf(s.out, "%s: removed\n", hex(uint32(key)))
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	chainStyle  = cellStyle.Foreground(lipgloss.Color("#87CEEB"))
)

// renderDump draws the table's buckets; chained entries are highlighted.
func renderDump(e *env) string {
	slots := e.table.Dump()
	if len(slots) == 0 {
		return "(empty)"
	}

	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		Headers("bucket", "depth", "key", "handle")
	for _, s := range slots {
		t.Row(strconv.Itoa(s.Index), strconv.Itoa(s.Depth), hex(uint32(s.Key)), hex(uint32(s.Handle)))
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == ltable.HeaderRow {
			return headerStyle
		}
		if row >= 0 && row < len(slots) && slots[row].Depth > 0 {
			return chainStyle
		}
		return cellStyle
	})
	return t.Render()
}

func renderStats(e *env) string {
	ts := e.table.Stats()
	ps := e.pool.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "table:  count %d/%d, len %d, buckets %d, chained %d, longest chain %d\n",
		e.table.Count(), e.table.Cap(), e.table.Len(), e.table.Buckets(), ts.Chained, ts.LongestChain)
	fmt.Fprintf(&b, "        inserts %d, updates %d, removes %d, rejects %d, releases %d\n",
		ts.Inserts, ts.Updates, ts.Removes, ts.Rejects, ts.Releases)
	fmt.Fprintf(&b, "pool:   live %d (%d bytes), allocated %d, released %d\n",
		ps.Live, ps.Bytes, ps.Allocated, ps.Released)
	fmt.Fprintf(&b, "memory: %s", e.alloc)
	return b.String()
}

func wantArgs(cmd string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s takes %d argument(s), got %d", cmd, n, len(args))
	}
	return nil
}

// parseUint accepts decimal or 0x-prefixed hex.
func parseUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("not a 32-bit number: %q", s)
	}
	return uint32(v), nil
}

func hex(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}
