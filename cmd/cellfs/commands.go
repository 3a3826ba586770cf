package main

import (
	"fmt"
	"strings"

	"github.com/marmos91/cellfs/pkg/engine"
	flag "github.com/spf13/pflag"
)

func runNamespace(e *env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing ns subcommand", errUsage)
	}

	switch args[0] {
	case "create":
		if len(args) != 1 {
			return fmt.Errorf("%w: ns create takes no arguments", errUsage)
		}
		ns, err := e.rt.Host.CreateNamespace(e.call())
		if err != nil {
			return err
		}
		return e.printJSON(map[string]string{"namespace": ns.Ref().String()})

	case "list":
		refs, err := e.rt.Host.Namespaces(e.ctx)
		if err != nil {
			return err
		}
		out := make([]string, len(refs))
		for i, ref := range refs {
			out[i] = ref.String()
		}
		return e.printJSON(out)

	case "drop":
		if len(args) != 2 {
			return fmt.Errorf("%w: ns drop takes one namespace", errUsage)
		}
		ref, err := parseRef(args[1])
		if err != nil {
			return err
		}
		return e.rt.Host.DropNamespace(e.call(), ref)

	default:
		return fmt.Errorf("%w: unknown ns subcommand %q", errUsage, args[0])
	}
}

func runCreate(e *env, args []string) error {
	fs := e.flags("create")
	id := fs.Uint64("id", 0, "Create at this id instead of allocating one")
	offset := fs.Uint64("offset", 0, "Byte offset the body is written at")
	body := addBodyFlags(fs)

	pos, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	data, err := body.body(e)
	if err != nil {
		return err
	}
	ns, err := e.namespace(pos[0])
	if err != nil {
		return err
	}

	name := []byte(pos[1])
	if fs.Changed("id") {
		if err := ns.CreateFileAt(e.call(), *id, name, data, *offset); err != nil {
			return err
		}
		return e.printJSON(map[string]uint64{"id": *id})
	}

	created, err := ns.CreateFile(e.call(), name, data, *offset)
	if err != nil {
		return err
	}
	return e.printJSON(map[string]uint64{"id": created})
}

func runMkdir(e *env, args []string) error {
	fs := e.flags("mkdir")
	id := fs.Uint64("id", 0, "Create at this id instead of allocating one")

	pos, err := parse(fs, args, 3)
	if err != nil {
		return err
	}
	target, err := parseRef(pos[2])
	if err != nil {
		return err
	}
	ns, err := e.namespace(pos[0])
	if err != nil {
		return err
	}

	name := []byte(pos[1])
	if fs.Changed("id") {
		if err := ns.CreateDirectoryAt(e.call(), *id, name, target); err != nil {
			return err
		}
		return e.printJSON(map[string]uint64{"id": *id})
	}

	created, err := ns.CreateDirectory(e.call(), name, target)
	if err != nil {
		return err
	}
	return e.printJSON(map[string]uint64{"id": created})
}

// runUpdate and runWrite share argument handling.
func fileWrite(e *env, name string, args []string, apply func(ns *engine.Namespace, id, offset uint64, body []byte) error) error {
	fs := e.flags(name)
	offset := fs.Uint64("offset", 0, "Byte offset the body is written at")
	body := addBodyFlags(fs)

	pos, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	id, err := parseID(pos[1])
	if err != nil {
		return err
	}
	data, err := body.body(e)
	if err != nil {
		return err
	}
	ns, err := e.namespace(pos[0])
	if err != nil {
		return err
	}
	return apply(ns, id, *offset, data)
}

func runUpdate(e *env, args []string) error {
	return fileWrite(e, "update", args, func(ns *engine.Namespace, id, offset uint64, body []byte) error {
		return ns.UpdateFile(e.call(), id, body, offset)
	})
}

func runWrite(e *env, args []string) error {
	return fileWrite(e, "write", args, func(ns *engine.Namespace, id, offset uint64, body []byte) error {
		return ns.WriteFile(e.call(), id, offset, body)
	})
}

// runTruncate sets a file to exactly --size bytes: shrinking rewrites the
// kept prefix at offset 0, growing appends zero bytes. It is two calls, a
// read then a write, not one atomic call.
func runTruncate(e *env, args []string) error {
	var size *uint64
	ns, id, err := entryArgs(e, "truncate", args, func(fs *flag.FlagSet) {
		size = fs.Uint64("size", 0, "New file size in bytes")
	})
	if err != nil {
		return err
	}

	entry, err := ns.Stat(e.ctx, id)
	if err != nil {
		return err
	}
	if !entry.Exists || entry.Kind != engine.KindFile {
		// Let the engine report the precise error
		return ns.UpdateFile(e.call(), id, nil, 0)
	}

	switch {
	case *size < entry.Size:
		prefix := []byte{}
		if *size > 0 {
			if prefix, err = ns.ReadFile(e.ctx, id, 0, *size); err != nil {
				return err
			}
		}
		return ns.UpdateFile(e.call(), id, prefix, 0)
	case *size > entry.Size:
		return ns.UpdateFile(e.call(), id, make([]byte, *size-entry.Size), entry.Size)
	default:
		return nil
	}
}

// entryArgs parses "<ns> <id>" plus the flags register adds.
func entryArgs(e *env, name string, args []string, register func(fs *flag.FlagSet)) (*engine.Namespace, uint64, error) {
	fs := e.flags(name)
	if register != nil {
		register(fs)
	}
	pos, err := parse(fs, args, 2)
	if err != nil {
		return nil, 0, err
	}
	id, err := parseID(pos[1])
	if err != nil {
		return nil, 0, err
	}
	ns, err := e.namespace(pos[0])
	if err != nil {
		return nil, 0, err
	}
	return ns, id, nil
}

func runRemove(e *env, args []string) error {
	ns, id, err := entryArgs(e, "rm", args, nil)
	if err != nil {
		return err
	}
	return ns.DeleteEntry(e.call(), id)
}

func runStat(e *env, args []string) error {
	ns, id, err := entryArgs(e, "stat", args, nil)
	if err != nil {
		return err
	}
	entry, err := ns.Stat(e.ctx, id)
	if err != nil {
		return err
	}
	return e.printJSON(viewOf(entry, false))
}

func runGet(e *env, args []string) error {
	var offset, length *uint64
	ns, id, err := entryArgs(e, "get", args, func(fs *flag.FlagSet) {
		offset = fs.Uint64("offset", 0, "First body byte to return")
		length = fs.Uint64("length", 0, "Maximum body bytes to return (0 = to the end)")
	})
	if err != nil {
		return err
	}

	var entry engine.Entry
	if *offset == 0 && *length == 0 {
		entry, err = ns.GetEntry(e.ctx, id)
	} else {
		entry, err = ns.GetEntryPage(e.ctx, id, *offset, *length)
	}
	if err != nil {
		return err
	}
	return e.printJSON(viewOf(entry, true))
}

func runList(e *env, args []string) error {
	fs := e.flags("ls")
	start := fs.Uint64("start", 0, "First index position")
	limit := fs.Uint64("limit", 0, "Maximum ids to return (0 = to the end)")

	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	ns, err := e.namespace(pos[0])
	if err != nil {
		return err
	}

	ids, err := ns.GetEntriesPage(e.ctx, *start, *limit)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return e.printJSON(ids)
}

func runCount(e *env, args []string) error {
	pos, err := parse(e.flags("count"), args, 1)
	if err != nil {
		return err
	}
	ns, err := e.namespace(pos[0])
	if err != nil {
		return err
	}
	n, err := ns.GetEntryCount(e.ctx)
	if err != nil {
		return err
	}
	return e.printJSON(map[string]uint64{"count": n})
}

func runExists(e *env, args []string) error {
	ns, id, err := entryArgs(e, "exists", args, nil)
	if err != nil {
		return err
	}
	ok, err := ns.Exists(e.ctx, id)
	if err != nil {
		return err
	}
	return e.printJSON(map[string]bool{"exists": ok})
}

func runRead(e *env, args []string) error {
	var offset, length *uint64
	ns, id, err := entryArgs(e, "read", args, func(fs *flag.FlagSet) {
		offset = fs.Uint64("offset", 0, "First byte to read")
		length = fs.Uint64("length", 0, "Bytes to read (0 = to the end)")
	})
	if err != nil {
		return err
	}

	n := *length
	if n == 0 {
		entry, err := ns.Stat(e.ctx, id)
		if err != nil {
			return err
		}
		if entry.Size > *offset {
			n = entry.Size - *offset
		}
	}

	data, err := ns.ReadFile(e.ctx, id, *offset, n)
	if err != nil {
		return err
	}
	_, err = e.stdout.Write(data)
	return err
}

func runCluster(e *env, args []string) error {
	pos, err := parse(e.flags("cluster"), args, 3)
	if err != nil {
		return err
	}
	id, err := parseID(pos[1])
	if err != nil {
		return err
	}
	index, err := parseID(pos[2])
	if err != nil {
		return err
	}
	ns, err := e.namespace(pos[0])
	if err != nil {
		return err
	}

	word, err := ns.ReadCluster(e.ctx, id, index)
	if err != nil {
		return err
	}
	return e.printJSON(map[string]string{"cluster": word.String()})
}

func runTree(e *env, args []string) error {
	pos, err := parse(e.flags("tree"), args, 1)
	if err != nil {
		return err
	}
	root, err := parseRef(pos[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "%s\n", root)
	return engine.NewWalker(e.rt.Host).Walk(e.ctx, root, func(v engine.Visit) error {
		indent := strings.Repeat("  ", v.Depth()+1)
		line := fmt.Sprintf("%s%d %s", indent, v.Entry.ID, v.Entry.Name)
		if v.Entry.Kind == engine.KindDirectory {
			line += fmt.Sprintf("/ -> %s", v.Entry.Target)
		} else {
			line += fmt.Sprintf(" (%d bytes)", v.Entry.Size)
		}
		switch {
		case engine.IsCode(v.Err, engine.ErrCycle):
			line += " [cycle]"
		case engine.IsCode(v.Err, engine.ErrNotFound):
			line += " [missing]"
		}
		_, err := fmt.Fprintln(e.stdout, line)
		return err
	})
}
