package cmdutils

import (
	"fmt"
	"io"
	"strings"
)

const logo = "🐬"

// StreamResponse copies body to w under the toolstream banner as it arrives
// and returns everything that was read.
func StreamResponse(w io.Writer, body io.Reader) (string, error) {
	fmt.Fprintf(w, "\n%s toolstream\n", logo)

	var sb strings.Builder
	_, err := io.Copy(io.MultiWriter(w, &sb), body)
	fmt.Fprint(w, "\n\n")
	return sb.String(), err
}
