package builtin

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/udonscript/udon/value"
	"github.com/udonscript/udon/vm"
)

// htmlBuiltin implements the `$html<body>` template token (spec.md §4.2
// "Templates": "a $NAME<body> token is compiled as: push the literal body
// string, then call the function named NAME with one argument"). It parses
// the body as an HTML fragment and re-renders it, which both validates the
// markup (malformed tags are auto-closed/escaped by the parser the way a
// browser would) and guarantees the result is well-formed HTML regardless
// of what the script interpolated into it.
func htmlBuiltin() vm.Builtin {
	return vm.Builtin{
		Name:       "html",
		Signature:  "html(bodyText)",
		ReturnType: "string",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			if len(positional) != 1 {
				return value.None, nil
			}
			nodes, err := html.ParseFragment(strings.NewReader(positional[0].Str()), &html.Node{
				Type:     html.ElementNode,
				Data:     "body",
				DataAtom: atom.Body,
			})
			if err != nil {
				return value.None, err
			}
			var buf strings.Builder
			for _, n := range nodes {
				if err := html.Render(&buf, n); err != nil {
					return value.None, err
				}
			}
			return value.String(buf.String()), nil
		},
	}
}
