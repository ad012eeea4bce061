package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xcono/docstore/schema"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05"

	passwordMask = "********"
)

// Draft, Submitted and Cancelled are the doc_status values.
const (
	StatusDraft     int64 = 0
	StatusSubmitted int64 = 1
	StatusCancelled int64 = 2
)

func nowStamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// docStatus reads doc_status as an int64 whatever the driver returned.
func docStatus(doc map[string]any) int64 {
	return asInt(doc["doc_status"])
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		var out int64
		fmt.Sscanf(n, "%d", &out)
		return out
	}
	return 0
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// applyDefaults substitutes declared defaults for absent fields, resolving
// the reserved tokens "now" and "user". Fields marked plain are left alone.
func (e *Engine) applyDefaults(d *schema.Doctype, doc map[string]any, s Session) {
	for _, f := range d.StoredFields() {
		if schema.StandardFieldNames[f.Name] {
			continue
		}
		if f.Default == nil || f.Plain {
			continue
		}
		if v, ok := doc[f.Name]; ok && v != nil {
			continue
		}
		doc[f.Name] = resolveDefault(f.Default, s)
	}
}

func resolveDefault(def any, s Session) any {
	if token, ok := def.(string); ok {
		switch token {
		case "now":
			return nowStamp()
		case "user":
			return s.User
		}
	}
	return def
}

// normalizeValues coerces payload values onto storable shapes and validates
// date/time formats. Only fields present in doc participate.
func normalizeValues(d *schema.Doctype, doc map[string]any) error {
	for name, v := range doc {
		f := d.Field(name)
		if f == nil || !f.Stored() || v == nil {
			continue
		}
		switch f.Type {
		case schema.TypeCheck:
			doc[name] = asInt(v)
		case schema.TypeInteger:
			doc[name] = asInt(v)
		case schema.TypeJSON:
			if _, ok := v.(string); !ok {
				raw, err := json.Marshal(v)
				if err != nil {
					return Validation("field %s is not valid JSON: %v", name, err)
				}
				doc[name] = string(raw)
			}
		case schema.TypeDate:
			if err := checkLayout(name, v, dateLayout); err != nil {
				return err
			}
		case schema.TypeTime:
			if err := checkLayout(name, v, timeLayout); err != nil {
				return err
			}
		case schema.TypeDatetime:
			if err := checkLayout(name, v, timestampLayout); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkLayout(field string, v any, layout string) error {
	s, ok := v.(string)
	if !ok {
		return Validation("field %s must be a %q string", field, layout)
	}
	if s == "" {
		return nil
	}
	if _, err := time.Parse(layout, s); err != nil {
		return Validation("field %s has malformed value %q, expected %q", field, s, layout)
	}
	return nil
}

// format prepares a persisted document for return to the caller: sensitive
// fields are masked to a fixed placeholder.
func format(d *schema.Doctype, doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := copyDoc(doc)
	for _, f := range d.OrderedFields() {
		if f.Type != schema.TypePassword {
			continue
		}
		if v, ok := out[f.Name]; ok && asString(v) != "" {
			out[f.Name] = passwordMask
		}
	}
	return out
}
