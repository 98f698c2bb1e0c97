// Package expand implements the token expander (§4.5): turning a Rule's
// command template plus an offending path into the literal string handed to
// /bin/sh -c.
package expand

import "strings"

// Command expands template by substituting, token by token (whitespace
// delimited), every $ENTRY_RELATIVE with name and every $ENTRY with
// path+"/"+name. $ENTRY_RELATIVE is replaced first in each token so that it
// is never partially matched by the $ENTRY substitution (the longer token
// doesn't get captured by the shorter one). Expanded tokens are joined by
// single spaces and the result always ends with one trailing space — a
// template like "cp $ENTRY /tgt" yields "cp /a/b.log /tgt ", matching the
// literal examples in §8.
//
// This does not reproduce the original get_token's mutate-while-copying bug:
// tokens are read, substituted, and written independently of each other.
func Command(template, path, name string) string {
	full := path + "/" + name
	tokens := strings.Fields(template)
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		tok = strings.ReplaceAll(tok, "$ENTRY_RELATIVE", name)
		tok = strings.ReplaceAll(tok, "$ENTRY", full)
		out[i] = tok
	}
	return strings.Join(out, " ") + " "
}
