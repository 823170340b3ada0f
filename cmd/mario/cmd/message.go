package cmd

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/solatis/mario/internal/types"
)

// stdinArg in place of the message reads it from standard input.
const stdinArg = "-"

func kindList() string {
	names := make([]string, 0, 3)
	for _, k := range types.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, "|")
}

// readMessage builds a message from "<kind> <msg>" or, with guess, "<msg>".
// Text read from stdin loses its trailing newline so `echo url | mario plumb
// url -` behaves like passing the url directly.
func readMessage(in io.Reader, args []string, guess bool) (types.Message, error) {
	var kindArg, data string
	switch {
	case guess && len(args) == 1:
		data = args[0]
	case guess:
		return types.Message{}, fmt.Errorf("--guess takes only the message")
	case len(args) == 2:
		kindArg, data = args[0], args[1]
	default:
		return types.Message{}, fmt.Errorf("expected a kind (%s) and a message, or --guess and a message", kindList())
	}

	kind := types.KindUnspecified
	if !guess {
		k, err := types.ParseKind(kindArg)
		if err != nil {
			return types.Message{}, err
		}
		kind = k
	}

	if data == stdinArg {
		b, err := io.ReadAll(in)
		if err != nil {
			return types.Message{}, fmt.Errorf("failed to read stdin: %w", err)
		}
		data = string(b)
		if kind != types.KindRaw && utf8.ValidString(data) {
			data = strings.TrimRight(data, "\r\n")
		}
	}

	if guess {
		kind = types.GuessKind([]byte(data))
	}
	return types.Message{Kind: kind, Data: data}, nil
}
