package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"modbot/internal/domain"
)

// record is one tool entry decoded from a manifest file.
type record struct {
	Meta
	Handler    string
	Command    []string
	Timeout    time.Duration
	Params     []domain.Param
	HasHandler bool
}

// IsManifest reports whether a file name is a candidate manifest. Names
// starting with "_" or "." are skipped.
func IsManifest(name string) bool {
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func decodeDocument(name string, data []byte) (map[string]any, error) {
	doc := map[string]any{}
	if strings.EqualFold(filepath.Ext(name), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
		return fromJSONNumbers(doc, "").(map[string]any), nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 {
		return doc, nil
	}
	quoteVersions(&root)
	if err := root.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// quoteVersions retags numeric "version" scalars as strings so that
// `version: 1.10` keeps its text instead of decoding to 1.1.
func quoteVersions(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Value == "version" && v.Kind == yaml.ScalarNode {
				if t := v.ShortTag(); t == "!!int" || t == "!!float" {
					v.Tag = "!!str"
				}
			}
		}
	}
	for _, c := range n.Content {
		quoteVersions(c)
	}
}

// fromJSONNumbers turns json.Number back into float64, except under a
// "version" key where the literal text is kept.
func fromJSONNumbers(v any, key string) any {
	switch x := v.(type) {
	case json.Number:
		if key == "version" {
			return x.String()
		}
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case map[string]any:
		for k, item := range x {
			x[k] = fromJSONNumbers(item, k)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = fromJSONNumbers(item, "")
		}
		return x
	}
	return v
}

// rawRecords returns the tool entries of a decoded manifest. ok is false
// when the document declares neither "tool" nor "tools".
func rawRecords(doc map[string]any) (entries []any, ok bool, err error) {
	single, hasSingle := doc["tool"]
	multi, hasMulti := doc["tools"]
	if !hasSingle && !hasMulti {
		return nil, false, nil
	}
	if hasSingle {
		entries = append(entries, single)
	}
	if hasMulti {
		list, isList := multi.([]any)
		if !isList {
			return nil, true, fmt.Errorf(`"tools" must be a list, got %s`, typeName(multi))
		}
		entries = append(entries, list...)
	}
	return entries, true, nil
}

// parseRecord decodes one entry. defaults supplies category, author, version
// and timeout for entries that omit them.
func parseRecord(entry any, defaults map[string]any) (record, error) {
	var rec record
	m, ok := entry.(map[string]any)
	if !ok {
		return rec, fmt.Errorf("tool entry must be a mapping, got %s", typeName(entry))
	}

	// Name is parsed first so later errors can be attributed to the tool.
	name, err := requireString(m, "name")
	rec.Name = name
	if err != nil {
		return rec, err
	}
	if rec.Description, err = requireString(m, "description"); err != nil {
		return rec, err
	}
	rec.Version = scalarString(pick(m, defaults, "version"))
	rec.Category = scalarString(pick(m, defaults, "category"))
	rec.Author = scalarString(pick(m, defaults, "author"))

	h, hasHandler := m["handler"]
	c, hasCommand := m["command"]
	switch {
	case hasHandler && hasCommand:
		return rec, fmt.Errorf(`"handler" and "command" are mutually exclusive`)
	case hasHandler:
		id, ok := h.(string)
		if !ok || id == "" {
			return rec, fmt.Errorf(`"handler" must be a non-empty string`)
		}
		rec.Handler = id
		rec.HasHandler = true
	case hasCommand:
		argv, err := stringList(c)
		if err != nil || len(argv) == 0 || argv[0] == "" {
			return rec, fmt.Errorf(`"command" must be a non-empty list of strings`)
		}
		rec.Command = argv
	default:
		return rec, fmt.Errorf(`missing "handler" or "command"`)
	}

	if raw := pick(m, defaults, "timeout"); raw != nil {
		s, ok := raw.(string)
		if !ok {
			return rec, fmt.Errorf(`"timeout" must be a duration string such as "10s"`)
		}
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return rec, fmt.Errorf("invalid timeout %q", s)
		}
		rec.Timeout = d
	}

	if raw, ok := m["parameters"]; ok && raw != nil {
		if rec.HasHandler {
			return rec, fmt.Errorf(`"parameters" only apply to command tools; handler %q declares its own`, rec.Handler)
		}
		if rec.Params, err = parseParams(raw); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func parseParams(raw any) ([]domain.Param, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf(`"parameters" must be a list`)
	}
	params := make([]domain.Param, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parameter %d must be a mapping", i)
		}
		name, err := requireString(m, "name")
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		p := domain.Param{
			Name:    name,
			Type:    domain.ParamType(scalarString(m["type"])),
			Purpose: scalarString(m["description"]),
			Default: m["default"],
		}
		if req, ok := m["required"]; ok {
			b, isBool := req.(bool)
			if !isBool {
				return nil, fmt.Errorf("parameter %q: required must be true or false", name)
			}
			p.Required = b
		}
		params = append(params, p)
	}
	return params, nil
}

func pick(m, defaults map[string]any, key string) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	if defaults != nil {
		return defaults[key]
	}
	return nil
}

func requireString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %s", key, typeName(v))
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

// scalarString renders scalars as text. Numeric versions arrive here
// already as strings, see quoteVersions.
func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int, int64, float64, bool:
		return fmt.Sprint(x)
	}
	return ""
}

func stringList(v any) ([]string, error) {
	switch x := v.(type) {
	case string:
		return strings.Fields(x), nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %s", typeName(item))
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list, got %s", typeName(v))
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, float64:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "mapping"
	}
	return fmt.Sprintf("%T", v)
}
