package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"seqsentry/internal/sequence"
)

// rawCmd decodes either a bare command name or a {name, params} object.
type rawCmd struct {
	Name   string
	Params map[string]string
}

func (c rawCmd) cmd() sequence.Cmd {
	return sequence.NewCmdWithValues(c.Name, c.Params)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *rawCmd) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		c.Params = map[string]string{}
		return json.Unmarshal(b, &c.Name)
	}

	var aux struct {
		Name   string          `json:"name"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.Name = aux.Name
	c.Params = map[string]string{}

	p := bytes.TrimSpace(aux.Params)
	switch {
	case len(p) == 0 || bytes.Equal(p, []byte("null")):
	case p[0] == '[':
		var names []string
		if err := json.Unmarshal(p, &names); err != nil {
			return fmt.Errorf("params of %q: %w", c.Name, err)
		}
		for _, n := range names {
			c.Params[n] = ""
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(p))
		dec.UseNumber()
		var values map[string]any
		if err := dec.Decode(&values); err != nil {
			return fmt.Errorf("params of %q: %w", c.Name, err)
		}
		for k, v := range values {
			c.Params[k] = scalarString(v)
		}
	}
	return nil
}

// scalarString renders a decoded JSON scalar as a param value.
func scalarString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *rawCmd) UnmarshalYAML(n *yaml.Node) error {
	c.Params = map[string]string{}
	switch n.Kind {
	case yaml.ScalarNode:
		c.Name = n.Value
		return nil
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: command must be a name or a mapping", n.Line)
	}

	var aux struct {
		Name   string    `yaml:"name"`
		Params yaml.Node `yaml:"params"`
	}
	if err := n.Decode(&aux); err != nil {
		return err
	}
	c.Name = aux.Name

	switch aux.Params.Kind {
	case 0:
	case yaml.SequenceNode:
		var names []string
		if err := aux.Params.Decode(&names); err != nil {
			return fmt.Errorf("params of %q: %w", c.Name, err)
		}
		for _, p := range names {
			c.Params[p] = ""
		}
	case yaml.MappingNode:
		if err := aux.Params.Decode(&c.Params); err != nil {
			return fmt.Errorf("params of %q: %w", c.Name, err)
		}
	case yaml.ScalarNode:
		if aux.Params.Tag != "!!null" {
			return fmt.Errorf("line %d: params of %q must be a list or a mapping", aux.Params.Line, c.Name)
		}
	default:
		return fmt.Errorf("line %d: params of %q must be a list or a mapping", aux.Params.Line, c.Name)
	}
	return nil
}

func toSession(raw []rawCmd) sequence.Session {
	s := make(sequence.Session, len(raw))
	for i, c := range raw {
		s[i] = c.cmd()
	}
	return s
}

// ReadFile reads the sessions stored at path in format f.
func ReadFile(path string, f Format) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	records, err := Read(file, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Read decodes sessions from r in format f. Sequence and keyed documents are
// validated against the session schema before decoding.
func Read(r io.Reader, f Format) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	switch f {
	case FormatSequence:
		return readSequence(data)
	case FormatKeyed:
		return readKeyed(data)
	case FormatTabular:
		return readTabular(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, int(f))
	}
}

func readSequence(data []byte) ([]Record, error) {
	if err := ValidateJSON(data); err != nil {
		return nil, err
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: sequence input must be a JSON array of sessions", ErrInvalidInput)
	}

	var raw [][]rawCmd
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}

	records := make([]Record, len(raw))
	for i, s := range raw {
		records[i] = Record{ID: strconv.Itoa(i), Session: toSession(s)}
	}
	return records, nil
}

func readKeyed(data []byte) ([]Record, error) {
	if err := ValidateYAML(data); err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: keyed input must be a mapping of session id to session", ErrInvalidInput, doc.Line)
	}

	records := make([]Record, 0, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		id := doc.Content[i].Value
		var raw []rawCmd
		if err := doc.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("session %q: %w", id, err)
		}
		records = append(records, Record{ID: id, Session: toSession(raw)})
	}
	return records, nil
}

// Column names of tabular input.
const (
	ColumnSessionID = "session_id"
	ColumnCommand   = "command"
	ColumnParams    = "params"
)

// readTabular groups CSV rows into sessions by session id, keeping the
// order in which ids first appear. The params cell holds k=v pairs or bare
// names separated by semicolons.
func readTabular(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	idCol, cmdCol, paramCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case ColumnSessionID:
			idCol = i
		case ColumnCommand:
			cmdCol = i
		case ColumnParams:
			paramCol = i
		}
	}
	if idCol < 0 || cmdCol < 0 {
		return nil, fmt.Errorf("header must contain %q and %q columns", ColumnSessionID, ColumnCommand)
	}

	var records []Record
	index := make(map[string]int)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if idCol >= len(row) || cmdCol >= len(row) {
			return nil, fmt.Errorf("line %d: missing columns", line)
		}

		id, name := row[idCol], strings.TrimSpace(row[cmdCol])
		if name == "" {
			return nil, fmt.Errorf("line %d: empty command", line)
		}

		params := map[string]string{}
		if paramCol >= 0 && paramCol < len(row) {
			params = ParseParams(row[paramCol])
		}

		i, ok := index[id]
		if !ok {
			i = len(records)
			index[id] = i
			records = append(records, Record{ID: id})
		}
		records[i].Session = append(records[i].Session, sequence.NewCmdWithValues(name, params))
	}
	return records, nil
}

// ParseParams parses "k=v;flag;k2=v2" into a param map. Names without "="
// get an empty value.
func ParseParams(s string) map[string]string {
	params := map[string]string{}
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k, v, _ := strings.Cut(item, "=")
		params[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return params
}
