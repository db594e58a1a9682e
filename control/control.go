// Package control implements the text-command interpreter described in
// spec.md section 4.6: the line-oriented protocol a write to
// /dev/tcmur drives, built from six verbs (load, unload, add, remove,
// source, dump) plus a supplemented help verb (SPEC_FULL.md's
// supplemented-features item 1).
//
// Grounded on the teacher's handler/handlerDB.go for the
// registry-facing half of load/unload, and on
// original_source/libtcmur/fuse_tcmur.c's command-line parsing for the
// verb/argument shape -- prefix matching, '#'-comment stripping, C
// numeric literals, and the never-abort-on-bad-input behavior.
package control

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tcmur/tcmur/dispatch"
	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/errno"
	"github.com/tcmur/tcmur/fsio"
	"github.com/tcmur/tcmur/handler"
	"github.com/tcmur/tcmur/tree"
)

// sourceMax is spec.md section 6's "a single source file <= 4096
// bytes" limit.
const sourceMax = 4096

// verbs is the closed set spec.md section 4.6 names, in the order
// "help" should list them.
var verbs = []string{"load", "unload", "add", "remove", "source", "dump", "help"}

// Interpreter holds everything a control-node write needs to reach:
// the handler loader/registry, the VFS tree, the dispatcher (so
// "remove" can stop a device's worker queue), and a filesystem for
// "source" to read from.
type Interpreter struct {
	hsvc *handler.Service
	t    *tree.Tree
	disp *dispatch.Dispatcher
	fs   *fsio.Service
	cwd  string

	// devByMinor lets "remove" find the tree node a minor is attached
	// to without a linear scan of the tree; the tree node itself only
	// carries the device going the other way (Node.Data).
	devByMinor map[int]*tree.Node

	devDir *tree.Node // the "/dev" directory device nodes are added under

	findHandler  func(subtype string) (domain.Handler, bool)
	addDevice    func(minor int, name, cfgTail string, h domain.Handler) (*domain.Device, error)
	removeDevice func(minor int) (*domain.Device, error)
}

// New builds an Interpreter. findHandler/addDevice/removeDevice are
// the registry's FindHandler/AddDevice/RemoveDevice, passed as
// closures (rather than an imported *registry.Registry) so this
// package never needs to import package registry -- the same
// cycle-avoidance handler/service.go uses for its own registrarFuncs.
//
// New ensures "/dev" exists and remembers it: spec.md section 4.6's
// add verb creates device nodes at "/dev/<dev-name>", not at the tree
// root (the control node itself also lives at "/dev/tcmur", mirroring
// original_source/libtcmur/fuse_tcmur_main.c mkdir-ing "dev" at
// startup before any device is ever added).
func New(hsvc *handler.Service, t *tree.Tree, disp *dispatch.Dispatcher, fs *fsio.Service, cwd string,
	findHandler func(subtype string) (domain.Handler, bool),
	addDevice func(minor int, name, cfgTail string, h domain.Handler) (*domain.Device, error),
	removeDevice func(minor int) (*domain.Device, error),
) (*Interpreter, error) {
	devDir, err := t.Mkdir("/dev")
	if err != nil {
		return nil, err
	}
	return &Interpreter{
		hsvc:         hsvc,
		t:            t,
		disp:         disp,
		fs:           fs,
		cwd:          cwd,
		devDir:       devDir,
		devByMinor:   make(map[int]*tree.Node),
		findHandler:  findHandler,
		addDevice:    addDevice,
		removeDevice: removeDevice,
	}, nil
}

// Feed processes data written to the control node: one or more
// newline-delimited lines, each echoed to out with a "> " prefix
// before execution, per spec.md section 4.6. A malformed or unknown
// line never aborts processing of the lines that follow it.
func (in *Interpreter) Feed(data []byte, out io.Writer) {
	for _, line := range strings.Split(string(data), "\n") {
		in.execLine(line, out)
	}
}

func (in *Interpreter) execLine(raw string, out io.Writer) {
	line := stripComment(raw)
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	fmt.Fprintf(out, "> %s\n", line)

	fields := strings.Fields(line)
	verb, ok := matchVerb(fields[0])
	if !ok {
		fmt.Fprintf(out, "unknown command %q; try \"help\"\n", fields[0])
		return
	}
	args := fields[1:]

	var err error
	switch verb {
	case "load":
		err = in.load(args, out)
	case "unload":
		err = in.unload(args, out)
	case "add":
		err = in.add(args, out)
	case "remove":
		err = in.remove(args, out)
	case "source":
		err = in.source(args, out)
	case "dump":
		fmt.Fprint(out, in.t.Format())
	case "help":
		in.help(out)
	}
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", verb, err)
	}
}

// stripComment removes a trailing '#'-initiated comment, per spec.md
// section 4.6.
func stripComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// matchVerb resolves word against the closed verb set by
// case-insensitive prefix match. An ambiguous prefix (matching more
// than one verb) is reported as unmatched, same as an unrecognized
// one -- spec.md names a single verb per line, and none of the six
// plus "help" share a leading letter, so ambiguity should not arise in
// practice, but a partial-word typo should fail closed rather than
// guess.
func matchVerb(word string) (string, bool) {
	word = strings.ToLower(word)
	var found string
	for _, v := range verbs {
		if strings.HasPrefix(v, word) {
			if found != "" {
				return "", false
			}
			found = v
		}
	}
	return found, found != ""
}

// parseUint parses a C-style numeric literal (decimal, or 0x-prefixed
// hex) per spec.md section 4.6.
func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

func parseMinor(s string) (int, error) {
	v, err := parseUint(s)
	if err != nil {
		return 0, errno.Newf(22, "%q is not a number", s) // EINVAL
	}
	if v > 255 {
		return 0, errno.Newf(22, "minor %d out of range (> 255)", v)
	}
	return int(v), nil
}

// load implements spec.md section 4.6's load verb: resolve subtype via
// the handler service, then create /sys/module/<subtype>.
func (in *Interpreter) load(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errno.New(22) // EINVAL
	}
	subtype := args[0]
	if err := in.hsvc.Load(subtype); err != nil {
		return err
	}
	if _, err := in.t.Mkdir("/sys/module/" + subtype); err != nil {
		logrus.Warnf("control: load %q: creating module dir: %v", subtype, err)
		return err
	}
	return nil
}

// unload implements the unload verb: drop the handler, then remove
// its module directory.
func (in *Interpreter) unload(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errno.New(22)
	}
	subtype := args[0]
	if err := in.hsvc.Unload(subtype); err != nil {
		return err
	}
	dir, err := in.t.Lookup("/sys/module/" + subtype)
	if err != nil {
		return nil // already gone; unload itself succeeded
	}
	return in.t.Remove(dir.Parent(), dir.Name())
}

// add implements the add verb: "<minor> /<subtype>/<cfg-tail>".
// Bounds and handler resolution mirror handler.Service.CheckConfig's
// parsing, then registry.AddDevice does the heavy lifting; on success
// a block-device tree node is created per spec.md section 4.6's
// table.
func (in *Interpreter) add(args []string, out io.Writer) error {
	if len(args) != 2 {
		return errno.New(22)
	}
	minor, err := parseMinor(args[0])
	if err != nil {
		return err
	}
	cfg := args[1]
	if !strings.HasPrefix(cfg, "/") {
		return errno.New(22)
	}
	subtype, tail := handler.SplitConfig(cfg)
	h, ok := in.findHandler(subtype)
	if !ok {
		return errno.New(6) // ENXIO
	}
	name := fmt.Sprintf("%s%03d", subtype, minor)

	dev, err := in.addDevice(minor, name, tail, h)
	if err != nil {
		return err
	}

	n, err := in.t.Add(in.devDir, name, tree.ModeBlockDevice, nil, dev)
	if err != nil {
		return err
	}
	n.SetDeviceInfo(minor, dev.BlockSize)
	n.SetSize(dev.Size())
	in.devByMinor[minor] = n
	return nil
}

// remove implements the remove verb: tree removal happens first and
// aborts the whole operation if it fails (the device stays attached),
// per spec.md section 4.6's explicit ordering.
func (in *Interpreter) remove(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errno.New(22)
	}
	minor, err := parseMinor(args[0])
	if err != nil {
		return err
	}
	n, ok := in.devByMinor[minor]
	if !ok {
		return errno.New(19) // ENODEV
	}
	if err := in.t.Remove(n.Parent(), n.Name()); err != nil {
		return err
	}
	if _, err := in.removeDevice(minor); err != nil {
		return err
	}
	in.disp.DisableQueue(minor)
	delete(in.devByMinor, minor)
	return nil
}

// source implements the source verb: read at most sourceMax bytes
// from path (relative paths resolve against in.cwd) and feed them back
// into the interpreter, recursively.
func (in *Interpreter) source(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errno.New(22)
	}
	path := args[0]
	if !filepath.IsAbs(path) {
		path = filepath.Join(in.cwd, path)
	}
	data, err := in.fs.ReadAtMost(path, sourceMax)
	if err != nil {
		return errno.Newf(2, "source %q: %v", path, err) // ENOENT
	}
	in.Feed(data, out)
	return nil
}

func (in *Interpreter) help(out io.Writer) {
	fmt.Fprintln(out, "commands: load <subtype> | unload <subtype> | add <minor> /<subtype>/<cfg> | remove <minor> | source <path> | dump")
}

// ReadDump serves a control-node read: a slice of the tree's current
// format() output starting at offset, per spec.md section 4.6's "reads
// ... return successive slices of the current format() output, using
// the caller-supplied offset as a cursor." Recomputed on every call so
// a read always reflects the tree as it stands right now, not a
// snapshot taken at the last "dump".
func (in *Interpreter) ReadDump(offset int64, size int) []byte {
	full := in.t.Format()
	if offset < 0 || offset >= int64(len(full)) {
		return nil
	}
	end := offset + int64(size)
	if end > int64(len(full)) {
		end = int64(len(full))
	}
	return []byte(full[offset:end])
}
