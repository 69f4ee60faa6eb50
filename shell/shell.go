// Package shell implements the line-oriented command interpreter that
// drives a minifs.FileSystem: spec.md treats this as an external
// collaborator out of the core's scope, but a complete repository for this
// domain ships a runnable host, not just a library. Grounded on
// original_source/File System/main.cpp's solve()/tokenize().
package shell

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rtprakash/minifs/minifs"
)

// maxTokens bounds each line to five whitespace-separated words, mirroring
// the original's MAX_CMD_ARGS.
const maxTokens = 5

// scratchSize is the size of M, the host-side scratch buffer rd/wr/rm/wm
// address into. It is sized well past the largest file MiniFS can hold
// (layout.MaxBlocksPerFile * block.Size = 1536 bytes).
const scratchSize = 4096

// Shell reads commands from in and writes their textual results to out. M,
// the scratch memory buffer, is owned here — not by minifs.FileSystem —
// since it is purely a host-side concern spec.md §1 excludes from the
// core.
type Shell struct {
	fs  *minifs.FileSystem
	in  *bufio.Scanner
	out *bufio.Writer

	m         [scratchSize]byte
	initCount int
	mounted   bool
}

// New returns a Shell driving fs, reading commands from in and writing
// results to out.
func New(fs *minifs.FileSystem, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		fs:  fs,
		in:  bufio.NewScanner(in),
		out: bufio.NewWriter(out),
	}
}

// Run reads and executes commands until in is exhausted, then flushes out.
func (s *Shell) Run() error {
	defer s.out.Flush()

	for s.in.Scan() {
		args := strings.Fields(s.in.Text())
		if len(args) == 0 {
			continue
		}
		if len(args) > maxTokens {
			args = args[:maxTokens]
		}
		s.dispatch(args)
	}
	return s.in.Err()
}

// fsCommands are every command that touches the mounted FileSystem rather
// than the interpreter's own scratch memory. rm/wm operate on M only and
// are allowed before the first "in", matching the original's globals-are-
// always-valid-memory behavior.
var fsCommands = map[string]bool{
	"cr": true, "de": true, "op": true, "cl": true,
	"rd": true, "wr": true, "sk": true, "dr": true,
}

func (s *Shell) dispatch(args []string) {
	if fsCommands[args[0]] && !s.mounted {
		s.fail()
		return
	}

	switch args[0] {
	case "cr":
		s.create(args)
	case "de":
		s.destroy(args)
	case "op":
		s.open(args)
	case "cl":
		s.close(args)
	case "rd":
		s.read(args)
	case "wr":
		s.write(args)
	case "sk":
		s.seek(args)
	case "dr":
		s.directory(args)
	case "in":
		s.init(args)
	case "rm":
		s.readMem(args)
	case "wm":
		s.writeMem(args)
	default:
		s.fail()
	}
}

func (s *Shell) fail() {
	fmt.Fprintln(s.out, "error")
}

func (s *Shell) create(args []string) {
	if len(args) < 2 {
		s.fail()
		return
	}
	if err := s.fs.Create(args[1]); err != nil {
		s.fail()
		return
	}
	fmt.Fprintf(s.out, "%s created\n", args[1])
}

func (s *Shell) destroy(args []string) {
	if len(args) < 2 {
		s.fail()
		return
	}
	if err := s.fs.Destroy(args[1]); err != nil {
		s.fail()
		return
	}
	fmt.Fprintf(s.out, "%s destroyed\n", args[1])
}

func (s *Shell) open(args []string) {
	if len(args) < 2 {
		s.fail()
		return
	}
	h, err := s.fs.Open(args[1])
	if err != nil || h <= 0 {
		s.fail()
		return
	}
	fmt.Fprintf(s.out, "%s opened %d\n", args[1], h)
}

func (s *Shell) close(args []string) {
	index, ok := s.positiveInt(args, 1)
	if !ok {
		s.fail()
		return
	}
	if err := s.fs.Close(index); err != nil {
		s.fail()
		return
	}
	fmt.Fprintf(s.out, "%d closed\n", index)
}

func (s *Shell) read(args []string) {
	index, mem, count, ok := s.handleMemCount(args)
	if !ok {
		return
	}
	n, err := s.fs.Read(index, s.m[mem:mem+count])
	if err != nil {
		s.fail()
		return
	}
	fmt.Fprintf(s.out, "%d bytes read from %d\n", n, index)
}

func (s *Shell) write(args []string) {
	index, mem, count, ok := s.handleMemCount(args)
	if !ok {
		return
	}
	n, err := s.fs.Write(index, s.m[mem:mem+count])
	if err != nil {
		s.fail()
		return
	}
	fmt.Fprintf(s.out, "%d bytes written to %d\n", n, index)
}

func (s *Shell) seek(args []string) {
	index, ok := s.positiveInt(args, 1)
	if !ok || len(args) < 3 {
		s.fail()
		return
	}
	pos, err := strconv.Atoi(args[2])
	if err != nil || pos < 0 {
		s.fail()
		return
	}
	if err := s.fs.Seek(index, int32(pos)); err != nil {
		s.fail()
		return
	}
	fmt.Fprintf(s.out, "position is %d\n", pos)
}

func (s *Shell) directory(args []string) {
	listing, _ := s.fs.Directory()
	fmt.Fprint(s.out, listing)
}

func (s *Shell) init(args []string) {
	s.initCount++
	if s.initCount > 1 {
		fmt.Fprintln(s.out)
	}
	if err := s.fs.Mount(); err != nil {
		s.fail()
		return
	}
	s.mounted = true
	fmt.Fprintln(s.out, "system initialized")
}

func (s *Shell) readMem(args []string) {
	if len(args) < 3 {
		s.fail()
		return
	}
	mem, count, ok := s.memRange(args[1], args[2])
	if !ok {
		s.fail()
		return
	}

	raw := s.m[mem : mem+count]
	text := raw
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		text = raw[:i]
	}
	fmt.Fprintf(s.out, "%-*s\n", count, string(text))
}

func (s *Shell) writeMem(args []string) {
	if len(args) < 3 {
		s.fail()
		return
	}
	mem, err := strconv.Atoi(args[1])
	if err != nil || mem < 0 {
		s.fail()
		return
	}
	str := args[2]
	if mem+len(str) > scratchSize {
		s.fail()
		return
	}

	copy(s.m[mem:], str)
	fmt.Fprintf(s.out, "%d bytes written to M\n", len(str))
}

// positiveInt parses args[i] and requires it to be a positive handle,
// matching the original's "index > 0" gate on every handle-taking command.
func (s *Shell) positiveInt(args []string, i int) (int, bool) {
	if len(args) <= i {
		return 0, false
	}
	v, err := strconv.Atoi(args[i])
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// handleMemCount parses and bounds-checks the common "<handle> <mem>
// <count>" argument shape shared by rd and wr.
func (s *Shell) handleMemCount(args []string) (index, mem, count int, ok bool) {
	index, ok = s.positiveInt(args, 1)
	if !ok {
		s.fail()
		return
	}
	if len(args) < 4 {
		s.fail()
		ok = false
		return
	}
	mem, count, ok = s.memRange(args[2], args[3])
	if !ok {
		s.fail()
		return
	}
	return index, mem, count, true
}

func (s *Shell) memRange(memArg, countArg string) (mem, count int, ok bool) {
	mem, err := strconv.Atoi(memArg)
	if err != nil || mem < 0 {
		return 0, 0, false
	}
	count, err = strconv.Atoi(countArg)
	if err != nil || count < 0 {
		return 0, 0, false
	}
	if mem+count > scratchSize {
		return 0, 0, false
	}
	return mem, count, true
}
