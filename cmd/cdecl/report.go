package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"

	"github.com/andrewchambers/cdecl/cpp"
)

// reportError prints err followed by the offending source line with a
// caret under the reported column, when the error carries a position in a
// readable file.
func reportError(w io.Writer, err error) {
	if env.Bool("CCDEBUG") {
		fmt.Fprintf(w, "%+v\n", err)
	} else {
		fmt.Fprintln(w, err)
	}
	var perr cpp.Positioned
	if !errors.As(err, &perr) {
		return
	}
	pos := perr.Position()
	if pos.File == "" || pos.Line == 0 {
		return
	}
	f, err := os.Open(pos.File)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(w, "")
	b := bufio.NewReader(f)
	lineno := 1
	for {
		done := false
		line, err := b.ReadString('\n')
		if err != nil {
			done = true
		}
		if lineno == pos.Line {
			fmt.Fprintf(w, "%s", line)
			if done {
				fmt.Fprintln(w, "")
			}
			// The lexer counts a tab as 4 columns. Tabs are copied so the
			// caret lines up however the terminal expands them.
			col := 1
			for _, v := range line {
				if col >= pos.Col || v == '\n' {
					break
				}
				if v == '\t' {
					fmt.Fprintf(w, "%c", '\t')
					col += 4
				} else {
					fmt.Fprintf(w, "%c", ' ')
					col += 1
				}
			}
			fmt.Fprintln(w, "^")
			return
		}
		lineno += 1
		if done {
			return
		}
	}
}
