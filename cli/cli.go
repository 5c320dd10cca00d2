// Package cli implements the interactive command front end. Commands
// map directly onto the tree contracts; the CLI holds no index state
// of its own.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"bpindex/pkg/bptree"
	"bpindex/pkg/customerrors"
)

type Cli struct {
	scanner *bufio.Scanner
	tree    *bptree.BPlusTree

	prompt *color.Color
	result *color.Color
	errOut *color.Color
}

func New(s *bufio.Scanner, t *bptree.BPlusTree) *Cli {
	return &Cli{
		scanner: s,
		tree:    t,
		prompt:  color.New(color.FgCyan),
		result:  color.New(color.FgGreen),
		errOut:  color.New(color.FgRed),
	}
}

// Start runs the read-eval loop until EOF or the exit command.
func (c *Cli) Start() {
	c.printHelp()
	c.printPrompt()
	for c.scanner.Scan() {
		if !c.processInput(c.scanner.Text()) {
			return
		}
		c.printPrompt()
	}
}

func (c *Cli) printHelp() {
	fmt.Println(`
B+ tree index CLI

Available Commands:
  insert <key>  Insert an integer key into the index
  search <key>  Look the key up in the index
  export-dot    Print the tree in DOT graph format
  flush         Write all dirty nodes to disk
  size          Print the number of stored keys
  exit          Flush and terminate this session`)
}

func (c *Cli) printPrompt() {
	c.prompt.Print("> ")
}

// processInput handles one command line. Returns false when the
// session should end.
func (c *Cli) processInput(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 1 {
		return true
	}

	switch command := strings.ToLower(fields[0]); command {
	default:
		c.errOut.Printf("Unknown command \"%s\"\n", command)
	case "insert":
		c.processInsert(fields[1:])
	case "search":
		c.processSearch(fields[1:])
	case "export-dot":
		c.processExportDot()
	case "flush":
		c.processFlush()
	case "size":
		c.result.Printf("%d\n", c.tree.Size())
	case "exit":
		return false
	}
	return true
}

func (c *Cli) processInsert(args []string) {
	key, ok := c.parseKey(args, "insert <key>")
	if !ok {
		return
	}

	inserted, err := c.tree.Insert(key)
	if err != nil {
		c.errOut.Printf("insert failed: %v\n", err)
		return
	}

	if !inserted {
		c.result.Println("already present")
		return
	}
	c.result.Println("ok")
}

func (c *Cli) processSearch(args []string) {
	key, ok := c.parseKey(args, "search <key>")
	if !ok {
		return
	}

	val, err := c.tree.Search(key)
	if err != nil {
		if errors.Is(err, customerrors.ErrKeyNotFound) {
			c.errOut.Println("Key not found.")
		} else {
			c.errOut.Printf("search failed: %v\n", err)
		}
		return
	}
	c.result.Printf("%d\n", val)
}

func (c *Cli) processExportDot() {
	dot, err := c.tree.ExportDot()
	if err != nil {
		c.errOut.Printf("export failed: %v\n", err)
		return
	}
	fmt.Print(dot)
}

func (c *Cli) processFlush() {
	if err := c.tree.WriteAll(); err != nil {
		c.errOut.Printf("flush failed: %v\n", err)
		return
	}
	c.result.Println("ok")
}

func (c *Cli) parseKey(args []string, usage string) (int64, bool) {
	if len(args) != 1 {
		fmt.Println("Usage:", usage)
		return 0, false
	}

	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		c.errOut.Printf("invalid key %q\n", args[0])
		return 0, false
	}
	return key, true
}
