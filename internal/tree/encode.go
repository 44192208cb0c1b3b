package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("tree: unknown format")

// FilesKey is the map key listing a directory's files.
const FilesKey = "."

// Format is a serialization format.
type Format uint8

const (
	JSON Format = iota
	YAML
	TOML
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case YAML:
		return "yaml"
	case TOML:
		return "toml"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseFormat maps a format name to its Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "toml":
		return TOML, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Encode writes root to w as a single-key map from the root's name to its
// contents. Each directory is a map whose "." key lists its files, followed
// by one key per subdirectory.
func Encode(w io.Writer, root *Node, format Format) error {
	switch format {
	case JSON:
		return encodeJSON(w, root)
	case YAML:
		return encodeYAML(w, root)
	case TOML:
		return encodeTOML(w, root)
	}
	return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

func encodeJSON(w io.Writer, root *Node) error {
	var raw bytes.Buffer
	raw.WriteByte('{')
	if err := writeJSONKey(&raw, root.Name); err != nil {
		return err
	}
	if err := root.writeJSON(&raw); err != nil {
		return err
	}
	raw.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, raw.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("tree: indent json: %w", err)
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	first := true
	if len(n.Files) > 0 {
		if err := writeJSONKey(buf, FilesKey); err != nil {
			return err
		}
		files, err := json.Marshal(n.Files)
		if err != nil {
			return err
		}
		buf.Write(files)
		first = false
	}
	for _, d := range n.Dirs {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := writeJSONKey(buf, d.Name); err != nil {
			return err
		}
		if err := d.writeJSON(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeJSONKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

func encodeYAML(w io.Writer, root *Node) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	doc.Content = append(doc.Content, yamlKey(root.Name), root.yamlNode())

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("tree: encode yaml: %w", err)
	}
	return enc.Close()
}

func (n *Node) yamlNode() *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	if len(n.Files) > 0 {
		files := &yaml.Node{Kind: yaml.SequenceNode}
		for _, f := range n.Files {
			files.Content = append(files.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f})
		}
		key := yamlKey(FilesKey)
		key.Style = yaml.DoubleQuotedStyle
		m.Content = append(m.Content, key, files)
	}
	for _, d := range n.Dirs {
		m.Content = append(m.Content, yamlKey(d.Name), d.yamlNode())
	}
	return m
}

func yamlKey(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// encodeTOML writes one table per directory in folded order. The encoder
// would sort map keys bytewise, so table headers are written here and only
// the file lists go through it.
func encodeTOML(w io.Writer, root *Node) error {
	var buf bytes.Buffer
	if err := root.writeTOML(&buf, []string{root.Name}); err != nil {
		return fmt.Errorf("tree: encode toml: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func (n *Node) writeTOML(buf *bytes.Buffer, table []string) error {
	if buf.Len() > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteByte('[')
	for i, k := range table {
		if i > 0 {
			buf.WriteByte('.')
		}
		if err := writeTOMLKey(buf, k); err != nil {
			return err
		}
	}
	buf.WriteString("]\n")

	if len(n.Files) > 0 {
		enc := toml.NewEncoder(buf)
		enc.SetArraysMultiline(true)
		if err := enc.Encode(map[string][]string{FilesKey: n.Files}); err != nil {
			return err
		}
	}
	for _, d := range n.Dirs {
		if err := d.writeTOML(buf, append(table[:len(table):len(table)], d.Name)); err != nil {
			return err
		}
	}
	return nil
}

// writeTOMLKey writes k bare when TOML allows it and as a basic string
// otherwise. JSON string escapes are a subset of TOML's.
func writeTOMLKey(buf *bytes.Buffer, k string) error {
	if k != "" && strings.IndexFunc(k, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' || r == '_' || r == '-')
	}) < 0 {
		buf.WriteString(k)
		return nil
	}
	q, err := json.Marshal(k)
	if err != nil {
		return err
	}
	buf.Write(q)
	return nil
}
