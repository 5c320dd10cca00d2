package bptree

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ExportDot renders the tree as a DOT graph description: one record
// statement per node labeled with its key sequence, and one edge per
// internal-to-child link. The walk is iterative and holds one node at
// a time, so large trees export within the usual cache bounds.
func (tree *BPlusTree) ExportDot() (string, error) {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	if tree.store == nil {
		return "", errors.New("tree is closed")
	}

	var b strings.Builder
	b.WriteString("digraph bptree {\n")

	stack := []uint64{tree.store.Root()}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, err := tree.store.Get(id)
		if err != nil {
			return "", err
		}

		if n.isLeaf() {
			writeLeafStmt(&b, id, n)
			continue
		}

		writeInternalStmt(&b, id, n)
		stack = append(stack, n.children...)
	}

	b.WriteString("}\n")
	return b.String(), nil
}

func writeLeafStmt(b *strings.Builder, id uint64, n *node) {
	fmt.Fprintf(b, "  n%d [shape=record, label=\"", id)
	for i, k := range n.keys {
		if i > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(b, "{ %d }", k)
	}
	b.WriteString("\"];\n")
}

func writeInternalStmt(b *strings.Builder, id uint64, n *node) {
	fmt.Fprintf(b, "  n%d [shape=record, label=\"<c0> ", id)
	for i, k := range n.keys {
		fmt.Fprintf(b, "| %d | <c%d> ", k, i+1)
	}
	b.WriteString("\"];\n")

	for i, child := range n.children {
		fmt.Fprintf(b, "  n%d:c%d -> n%d;\n", id, i, child)
	}
}
