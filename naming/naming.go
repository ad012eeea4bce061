// Package naming generates document identifiers from a naming-series
// pattern: literals, field interpolation, date/time and random tokens, and a
// zero-padded running counter resolved gap-safe against existing ids.
package naming

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xcono/docstore/schema"
)

// MatchFunc returns the existing ids sharing the given literal prefix and
// suffix. The engine backs it with a LIKE query on the doctype's table.
type MatchFunc func(prefix, suffix string) ([]string, error)

var (
	fieldToken   = regexp.MustCompile(`\{\{(\w+)\}\}`)
	counterToken = regexp.MustCompile(`\{#+\}`)
)

// Generate produces the id for a document about to be inserted.
//
// Singles are named after their doctype so the id is deterministic and
// idempotent. Doctypes without a naming series get 16 random hex characters.
func Generate(d *schema.Doctype, doc map[string]any, match MatchFunc) (string, error) {
	if d.IsSingle {
		return d.Name, nil
	}
	if d.NamingSeries == "" {
		return RandomHex(16), nil
	}

	expanded, err := expandFields(d.NamingSeries, doc)
	if err != nil {
		return "", err
	}
	expanded = expandUtility(expanded, time.Now())
	return resolveCounter(expanded, match)
}

// expandFields substitutes {{field}} tokens with stringified values from the
// candidate document.
func expandFields(pattern string, doc map[string]any) (string, error) {
	var missing string
	out := fieldToken.ReplaceAllStringFunc(pattern, func(token string) string {
		name := token[2 : len(token)-2]
		v, ok := doc[name]
		if !ok || v == nil {
			missing = name
			return ""
		}
		return fmt.Sprint(v)
	})
	if missing != "" {
		return "", fmt.Errorf("naming: field %q used in series is not set", missing)
	}
	return out, nil
}

// expandUtility substitutes current-time and random tokens.
func expandUtility(pattern string, now time.Time) string {
	r := strings.NewReplacer(
		"{YYYY}", now.Format("2006"),
		"{MM}", now.Format("01"),
		"{DD}", now.Format("02"),
		"{HH}", now.Format("15"),
		"{SS}", now.Format("05"),
		"{SSS}", fmt.Sprintf("%03d", now.Nanosecond()/1e6),
		"{T}", strconv.FormatInt(now.Unix(), 10),
		"{HEX}", RandomHex(4),
		"{8HEX}", RandomHex(8),
		"{16HEX}", RandomHex(16),
		"{UUID}", uuid.NewString(),
	)
	return r.Replace(pattern)
}

// resolveCounter replaces the {#...} run with max-plus-one over existing ids
// sharing the run's literal prefix and suffix. Max-plus-one rather than
// row-count survives deletions without reissuing an id.
func resolveCounter(pattern string, match MatchFunc) (string, error) {
	loc := counterToken.FindStringIndex(pattern)
	if loc == nil {
		return pattern, nil
	}
	if len(counterToken.FindAllString(pattern, 2)) > 1 {
		return "", fmt.Errorf("naming: series %q has more than one counter run", pattern)
	}

	prefix, suffix := pattern[:loc[0]], pattern[loc[1]:]
	width := loc[1] - loc[0] - 2 // number of '#'

	if match == nil {
		return "", fmt.Errorf("naming: series %q needs an id source for its counter", pattern)
	}
	ids, err := match(prefix, suffix)
	if err != nil {
		return "", err
	}

	max := 0
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) || !strings.HasSuffix(id, suffix) {
			continue
		}
		mid := id[len(prefix) : len(id)-len(suffix)]
		n, err := strconv.Atoi(mid)
		if err != nil || n < 0 {
			continue
		}
		if n > max {
			max = n
		}
	}

	return fmt.Sprintf("%s%0*d%s", prefix, width, max+1, suffix), nil
}

// RandomHex returns n random hex characters.
func RandomHex(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	return hex.EncodeToString(buf)[:n]
}

// SeriesFields lists the document fields a naming series interpolates. The
// orchestrator renames a document when any of them change on update.
func SeriesFields(series string) []string {
	var fields []string
	for _, m := range fieldToken.FindAllStringSubmatch(series, -1) {
		fields = append(fields, m[1])
	}
	return fields
}

// LikePattern builds the LIKE expression matching ids that share a counter's
// prefix and suffix, escaping LIKE metacharacters.
func LikePattern(prefix, suffix string) string {
	return escapeLike(prefix) + "%" + escapeLike(suffix)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
