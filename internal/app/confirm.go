package app

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm prints prompt followed by " [y/N]: " and reads one line.
// Only "y" and "yes" (any case) confirm; EOF declines.
func Confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
