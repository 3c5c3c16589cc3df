package diagram

import (
	"bufio"
	"strings"

	"github.com/faultline/faultline/pkg/schema"
)

// nodeDecl is a parsed node declaration line.
type nodeDecl struct {
	ID       string
	Kind     schema.NodeKind
	Text     string
	MediaRef string
	Safety   bool
	Line     int
}

// edgeDecl is a parsed edge declaration line.
type edgeDecl struct {
	Source string
	Target string
	Label  string
	Line   int
}

// document is the raw parse result, before graph construction.
type document struct {
	Title  string
	Topic  string
	RootID string
	Nodes  []nodeDecl
	Edges  []edgeDecl
}

// parse tokenizes flowchart source into node and edge declarations.
// Grammar, one declaration per line:
//
//	title: <text>
//	topic: <text>
//	root: <node-id>
//	[<kind>] <node-id>: "<text>" [@<media-ref>] [!safety]
//	<source-id> -> <target-id> [: "<label>"]
//
// Blank lines and lines starting with # are ignored.
func parse(source string) (*document, error) {
	doc := &document{}

	sc := bufio.NewScanner(strings.NewReader(source))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "title:"):
			doc.Title = strings.TrimSpace(strings.TrimPrefix(line, "title:"))
		case strings.HasPrefix(line, "topic:"):
			doc.Topic = strings.TrimSpace(strings.TrimPrefix(line, "topic:"))
		case strings.HasPrefix(line, "root:"):
			if doc.RootID != "" {
				return nil, schema.NewError(schema.ErrCodeParse, "duplicate root declaration").WithLine(lineNo)
			}
			doc.RootID = strings.TrimSpace(strings.TrimPrefix(line, "root:"))
			if doc.RootID == "" {
				return nil, schema.NewError(schema.ErrCodeParse, "root declaration has no node id").WithLine(lineNo)
			}
		case strings.HasPrefix(line, "["):
			decl, err := parseNodeDecl(line, lineNo)
			if err != nil {
				return nil, err
			}
			doc.Nodes = append(doc.Nodes, decl)
		case strings.Contains(line, "->"):
			decl, err := parseEdgeDecl(line, lineNo)
			if err != nil {
				return nil, err
			}
			doc.Edges = append(doc.Edges, decl)
		default:
			return nil, schema.NewErrorf(schema.ErrCodeParse, "unrecognized declaration: %s", line).WithLine(lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "read source").WithCause(err)
	}

	if doc.RootID == "" {
		return nil, schema.NewError(schema.ErrCodeParse, "no root declared")
	}

	return doc, nil
}

// parseNodeDecl parses a line of the form:
//
//	[step] check_power: "Verify mains power" @media/wiring.png !safety
func parseNodeDecl(line string, lineNo int) (nodeDecl, error) {
	end := strings.Index(line, "]")
	if end < 0 {
		return nodeDecl{}, schema.NewError(schema.ErrCodeParse, "unterminated node kind, expected ]").WithLine(lineNo)
	}
	kind := schema.NodeKind(strings.TrimSpace(line[1:end]))
	if !schema.ValidNodeKinds[kind] {
		return nodeDecl{}, schema.NewErrorf(schema.ErrCodeParse, "unknown node kind %q", string(kind)).WithLine(lineNo)
	}

	rest := strings.TrimSpace(line[end+1:])
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return nodeDecl{}, schema.NewError(schema.ErrCodeParse, "node declaration missing : after id").WithLine(lineNo)
	}
	id := strings.TrimSpace(rest[:colon])
	if id == "" {
		return nodeDecl{}, schema.NewError(schema.ErrCodeParse, "node declaration has empty id").WithLine(lineNo)
	}

	text, tail, err := parseQuoted(strings.TrimSpace(rest[colon+1:]), lineNo)
	if err != nil {
		return nodeDecl{}, err
	}

	decl := nodeDecl{ID: id, Kind: kind, Text: text, Line: lineNo}
	for _, tok := range strings.Fields(tail) {
		switch {
		case strings.HasPrefix(tok, "@"):
			decl.MediaRef = tok[1:]
		case tok == "!safety":
			decl.Safety = true
		default:
			return nodeDecl{}, schema.NewErrorf(schema.ErrCodeParse, "unexpected token %q after node text", tok).WithLine(lineNo)
		}
	}
	// The safety kind always carries the flag; !safety marks other kinds.
	if kind == schema.NodeKindSafety {
		decl.Safety = true
	}
	return decl, nil
}

// parseEdgeDecl parses a line of the form:
//
//	power_led -> lockout : "Yes"
func parseEdgeDecl(line string, lineNo int) (edgeDecl, error) {
	parts := strings.SplitN(line, "->", 2)
	source := strings.TrimSpace(parts[0])
	if source == "" {
		return edgeDecl{}, schema.NewError(schema.ErrCodeParse, "edge has empty source").WithLine(lineNo)
	}

	rest := strings.TrimSpace(parts[1])
	target := rest
	label := ""
	if colon := strings.Index(rest, ":"); colon >= 0 {
		target = strings.TrimSpace(rest[:colon])
		var err error
		label, _, err = parseQuoted(strings.TrimSpace(rest[colon+1:]), lineNo)
		if err != nil {
			return edgeDecl{}, err
		}
	}
	if target == "" {
		return edgeDecl{}, schema.NewError(schema.ErrCodeParse, "edge has empty target").WithLine(lineNo)
	}

	return edgeDecl{Source: source, Target: target, Label: label, Line: lineNo}, nil
}

// parseQuoted extracts a leading double-quoted string and returns the
// remainder of the line after the closing quote.
func parseQuoted(s string, lineNo int) (quoted, tail string, err error) {
	if !strings.HasPrefix(s, `"`) {
		return "", "", schema.NewErrorf(schema.ErrCodeParse, "expected quoted text, got %q", s).WithLine(lineNo)
	}
	end := strings.Index(s[1:], `"`)
	if end < 0 {
		return "", "", schema.NewError(schema.ErrCodeParse, "unterminated quote").WithLine(lineNo)
	}
	return s[1 : end+1], strings.TrimSpace(s[end+2:]), nil
}
