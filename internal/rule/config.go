package rule

import (
	"bufio"
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Load reads the rule file at path, autodetects its dialect, and returns the
// ordered sequence of Rules it describes. Any invalid field anywhere in the
// file aborts loading with no Rules produced, per §4.1's "Error mode".
func Load(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", path)
	}

	switch firstToken(data) {
	case '[':
		return loadStructured(data)
	case '{':
		return loadBlock(data)
	default:
		return nil, errors.Errorf("%s: cannot determine rule-file dialect (expected '{' or '[')", path)
	}
}

// firstToken returns the first non-whitespace byte of data that does not
// belong to a '#'-prefixed comment line, or 0 if data has no such byte. This
// is how the daemon autodetects which of the two dialects a rule file uses.
func firstToken(data []byte) byte {
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line[0]
	}
	return 0
}

// --- Block dialect -----------------------------------------------------

// loadBlock parses the "{ KEY = VALUE ... }" dialect. Lines beginning with
// '#' are comments, per §4.1.
func loadBlock(data []byte) ([]Rule, error) {
	var rules []Rule
	var cur map[string]string
	inBlock := false
	index := 0

	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case line == "{":
			if inBlock {
				return nil, errors.Errorf("rule %d: nested '{' before closing previous block", index+1)
			}
			inBlock = true
			index++
			cur = make(map[string]string)
		case line == "}":
			if !inBlock {
				return nil, errors.Errorf("unexpected '}' with no open block")
			}
			r, err := ruleFromFields(index, cur)
			if err != nil {
				return nil, err
			}
			rules = append(rules, *r)
			inBlock = false
			cur = nil
		default:
			if !inBlock {
				return nil, errors.Errorf("rule %d: key/value line outside of a '{...}' block: %q", index+1, line)
			}
			key, value, ok := splitKeyValue(line)
			if !ok {
				return nil, errors.Errorf("rule %d: malformed line %q (expected KEY = VALUE)", index, line)
			}
			cur[strings.ToUpper(key)] = value
		}
	}
	if inBlock {
		return nil, errors.Errorf("rule %d: unterminated block, missing '}'", index)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	return rules, nil
}

// splitKeyValue splits "KEY = VALUE", tolerating any amount of space around
// '='. It treats the input strictly as data — never as a format string (the
// original block loader's sprintf(pathname, token) bug is not reproduced
// here).
func splitKeyValue(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

func ruleFromFields(index int, f map[string]string) (*Rule, error) {
	r := &Rule{Index: index}

	if target, ok := f["TARGET"]; ok {
		r.Target = target
	}
	if watches, ok := f["WATCHES"]; ok {
		mask, err := ParseEvents(strings.Fields(watches))
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d: WATCHES", index)
		}
		r.Events = mask
	}
	if spawn, ok := f["SPAWN"]; ok {
		r.Command = spawn
	}
	if lookat, ok := f["LOOKAT"]; ok {
		la, err := ParseLookAt(lookat)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d: LOOKAT", index)
		}
		r.LookAt = la
	}

	regexSrc := ".*"
	if accept, ok := f["ACCEPT_REGEX"]; ok {
		regexSrc = accept
	}
	re, err := regexp.CompilePOSIX(regexSrc)
	if err != nil {
		return nil, errors.Wrapf(err, "rule %d: ACCEPT_REGEX %q", index, regexSrc)
	}
	r.RegexSource, r.Regex = regexSrc, re

	if depth, ok := f["RECURSIVE_DEPTH"]; ok {
		n, err := ParseDepth(depth)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d: RECURSIVE_DEPTH", index)
		}
		r.Depth = n
	}

	if err := Validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

// --- Structured (JSON) dialect ------------------------------------------

// structuredRule mirrors the original's read_json_object: every field must
// be a JSON string, matching map_target/map_watches/.../map_depth, each of
// which calls json_object_get_string on the value regardless of field.
type structuredRule map[string]json.RawMessage

func loadStructured(data []byte) ([]Rule, error) {
	var raw []structuredRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing structured config: expected a single top-level JSON array of objects")
	}

	rules := make([]Rule, 0, len(raw))
	for i, obj := range raw {
		r, err := ruleFromJSON(i+1, obj)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, nil
}

func jsonStringField(index int, obj structuredRule, key string) (string, bool, error) {
	raw, ok := obj[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, errors.Errorf("rule %d: %q must be a JSON string", index, key)
	}
	return s, true, nil
}

func ruleFromJSON(index int, obj structuredRule) (*Rule, error) {
	r := &Rule{Index: index}

	if desc, ok, err := jsonStringField(index, obj, "description"); err != nil {
		return nil, err
	} else if ok {
		r.Description = desc
	}

	target, ok, err := jsonStringField(index, obj, "target")
	if err != nil {
		return nil, err
	}
	if ok {
		r.Target = target
	}

	if watches, ok, err := jsonStringField(index, obj, "watches"); err != nil {
		return nil, err
	} else if ok {
		mask, err := ParseEvents(strings.Fields(watches))
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d: watches", index)
		}
		r.Events = mask
	}

	if spawn, ok, err := jsonStringField(index, obj, "spawn"); err != nil {
		return nil, err
	} else if ok {
		r.Command = spawn
	}

	if lookat, ok, err := jsonStringField(index, obj, "lookat"); err != nil {
		return nil, err
	} else if ok {
		la, err := ParseLookAt(lookat)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d: lookat", index)
		}
		r.LookAt = la
	}

	regexSrc := ".*"
	if regexVal, ok, err := jsonStringField(index, obj, "regex"); err != nil {
		return nil, err
	} else if ok {
		regexSrc = regexVal
	}
	re, err := regexp.CompilePOSIX(regexSrc)
	if err != nil {
		return nil, errors.Wrapf(err, "rule %d: regex %q", index, regexSrc)
	}
	r.RegexSource, r.Regex = regexSrc, re

	if depthStr, ok, err := jsonStringField(index, obj, "depth"); err != nil {
		return nil, err
	} else if ok {
		n, err := ParseDepth(depthStr)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d: depth", index)
		}
		r.Depth = n
	}

	for key := range obj {
		switch key {
		case "description", "target", "watches", "spawn", "lookat", "regex", "depth":
		default:
			return nil, errors.Errorf("rule %d: unknown field %q", index, key)
		}
	}

	if err := Validate(r); err != nil {
		return nil, err
	}
	return r, nil
}
