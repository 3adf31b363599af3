package index

import (
	"encoding/hex"
	"fmt"
	"io"

	"bptreedb/pkg/layout"
)

// DisplayMode selects one of the three dump formats historically
// offered by the original index dumper: a depth-prefixed human
// listing, a Graphviz dot rendering, and a flat sorted key/value
// listing of leaf contents only.
type DisplayMode int

const (
	DisplayDepth DisplayMode = iota
	DisplayDot
	DisplaySortedKeyValue
)

// Display writes a dump of the tree to w in the requested mode.
func (ix *Index) Display(w io.Writer, mode DisplayMode) error {
	switch mode {
	case DisplayDepth:
		return ix.displayDepth(w, ix.rootBlock(), 0)
	case DisplayDot:
		if _, err := fmt.Fprintln(w, "digraph bptree {"); err != nil {
			return err
		}
		if err := ix.displayDot(w, ix.rootBlock()); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, "}")
		return err
	case DisplaySortedKeyValue:
		return ix.displaySorted(w, ix.rootBlock())
	default:
		return fmt.Errorf("index: unknown display mode %d", mode)
	}
}

func (ix *Index) displayDepth(w io.Writer, id uint32, depth int) error {
	node, err := ix.readNode(id)
	if err != nil {
		return err
	}
	prefix := ""
	for i := 0; i < depth; i++ {
		prefix += "  "
	}
	switch node.Kind() {
	case layout.KindLeaf:
		keys, values, err := leafEntries(node)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%sleaf(%d) n=%d\n", prefix, id, len(keys)); err != nil {
			return err
		}
		for i := range keys {
			if _, err := fmt.Fprintf(w, "%s  %s -> %s\n", prefix, hex.EncodeToString(keys[i]), hex.EncodeToString(values[i])); err != nil {
				return err
			}
		}
		return nil
	case layout.KindRoot, layout.KindInterior:
		keys, ptrs, err := interiorEntries(node)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s%s(%d) n=%d\n", prefix, node.Kind(), id, len(keys)); err != nil {
			return err
		}
		for i, p := range ptrs {
			if err := ix.displayDepth(w, p, depth+1); err != nil {
				return err
			}
			if i < len(keys) {
				if _, err := fmt.Fprintf(w, "%s  -- key %s --\n", prefix, hex.EncodeToString(keys[i])); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		_, err := fmt.Fprintf(w, "%s%s(%d)\n", prefix, node.Kind(), id)
		return err
	}
}

func (ix *Index) displayDot(w io.Writer, id uint32) error {
	node, err := ix.readNode(id)
	if err != nil {
		return err
	}
	switch node.Kind() {
	case layout.KindLeaf:
		keys, _, err := leafEntries(node)
		if err != nil {
			return err
		}
		label := fmt.Sprintf("leaf %d", id)
		for _, k := range keys {
			label += "\\n" + hex.EncodeToString(k)
		}
		_, err = fmt.Fprintf(w, "  n%d [shape=box label=\"%s\"];\n", id, label)
		return err
	case layout.KindRoot, layout.KindInterior:
		keys, ptrs, err := interiorEntries(node)
		if err != nil {
			return err
		}
		label := fmt.Sprintf("%s %d", node.Kind(), id)
		for _, k := range keys {
			label += "\\n" + hex.EncodeToString(k)
		}
		if _, err := fmt.Fprintf(w, "  n%d [shape=ellipse label=\"%s\"];\n", id, label); err != nil {
			return err
		}
		for _, p := range ptrs {
			if _, err := fmt.Fprintf(w, "  n%d -> n%d;\n", id, p); err != nil {
				return err
			}
			if err := ix.displayDot(w, p); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fmt.Fprintf(w, "  n%d [shape=diamond label=\"%s %d\"];\n", id, node.Kind(), id)
		return err
	}
}

func (ix *Index) displaySorted(w io.Writer, id uint32) error {
	node, err := ix.readNode(id)
	if err != nil {
		return err
	}
	switch node.Kind() {
	case layout.KindLeaf:
		keys, values, err := leafEntries(node)
		if err != nil {
			return err
		}
		for i := range keys {
			if _, err := fmt.Fprintf(w, "%s %s\n", hex.EncodeToString(keys[i]), hex.EncodeToString(values[i])); err != nil {
				return err
			}
		}
		return nil
	case layout.KindRoot, layout.KindInterior:
		_, ptrs, err := interiorEntries(node)
		if err != nil {
			return err
		}
		for _, p := range ptrs {
			if err := ix.displaySorted(w, p); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}
