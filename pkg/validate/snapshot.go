package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/warden-proxy/warden/pkg/domain"
	"github.com/warden-proxy/warden/pkg/rules"
)

// opaqueBodyField names the single synthetic field used for bodies that are
// not JSON documents.
const opaqueBodyField = "(body)"

// BuildSnapshot constructs the immutable per-request view the validators
// consume. The request body is buffered in full (bounded by the configured
// limit) and r.Body is replaced with a replayable copy so downstream handlers
// see the original stream.
//
// The returned verdict is rejecting when the body itself is unusable: larger
// than the limit, or JSON that fails to parse or nests beyond the container
// cap. An error is returned only for transport-level read failures.
func BuildSnapshot(r *http.Request, limits rules.Limits) (domain.Snapshot, domain.Verdict, error) {
	limits = limits.Normalized()

	snap := domain.Snapshot{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: headerPairs(r.Header),
		Query:   queryPairs(r.URL.RawQuery),
	}

	if r.Body == nil || r.Body == http.NoBody {
		return snap, domain.Allow(), nil
	}

	// Read one byte past the limit so oversize is detectable without
	// buffering an unbounded stream.
	raw, err := io.ReadAll(io.LimitReader(r.Body, limits.MaxBodyBytes+1))
	if cerr := r.Body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return snap, domain.Allow(), fmt.Errorf("%w: %v", domain.ErrSnapshotFailed, err)
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	snap.BodyBytes = int64(len(raw))

	if snap.BodyBytes > limits.MaxBodyBytes {
		return snap, domain.Reject(domain.CategoryOversizedInput, domain.ScopeBodyField, opaqueBodyField), nil
	}
	if len(raw) == 0 {
		return snap, domain.Allow(), nil
	}

	if isJSONBody(r, raw) {
		fields, verdict := flattenJSON(raw, limits.MaxJSONContainers)
		if !verdict.Allowed {
			return snap, verdict, nil
		}
		snap.Body = fields
		return snap, domain.Allow(), nil
	}

	snap.Body = []domain.BodyField{{Name: opaqueBodyField, Value: string(raw), Opaque: true}}
	return snap, domain.Allow(), nil
}

// headerPairs converts the header map into a deterministic ordered sequence.
// Go's header map loses wire order, so names are sorted; multiple values for
// one name keep their arrival order.
func headerPairs(h http.Header) []domain.HeaderPair {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var pairs []domain.HeaderPair
	for _, name := range names {
		for _, value := range h[name] {
			pairs = append(pairs, domain.HeaderPair{Name: name, Value: value})
		}
	}
	return pairs
}

// queryPairs splits the raw query string preserving parameter order. Keys and
// values stay percent-encoded; validators check both the literal and the
// decoded form so encoding cannot be used as a bypass.
func queryPairs(rawQuery string) []domain.QueryPair {
	if rawQuery == "" {
		return nil
	}

	var pairs []domain.QueryPair
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		pairs = append(pairs, domain.QueryPair{Key: key, Value: value})
	}
	return pairs
}

func isJSONBody(r *http.Request, raw []byte) bool {
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		return true
	}
	if ct != "" {
		return false
	}
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// flattenJSON walks the parsed document and emits one BodyField per object
// key, carrying the value for string leaves. Non-string leaves are opaque to
// signature checks but their key names still surface for operator-injection
// detection. The container cap bounds both breadth and depth, so deeply
// nested documents reject instead of exhausting the stack.
func flattenJSON(raw []byte, maxContainers int) ([]domain.BodyField, domain.Verdict) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, domain.Reject(domain.CategoryMalformedBody, domain.ScopeBodyField, opaqueBodyField)
	}

	w := &jsonWalker{remaining: maxContainers}
	if !w.walk("", doc) {
		return nil, domain.Reject(domain.CategoryMalformedBody, domain.ScopeBodyField, opaqueBodyField)
	}
	return w.fields, domain.Allow()
}

type jsonWalker struct {
	fields    []domain.BodyField
	remaining int
}

func (w *jsonWalker) walk(path string, node any) bool {
	switch v := node.(type) {
	case map[string]any:
		w.remaining--
		if w.remaining < 0 {
			return false
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			child := joinPath(path, key)
			if s, ok := v[key].(string); ok {
				w.fields = append(w.fields, domain.BodyField{Name: child, Value: s})
				continue
			}
			// Surface the key even when the value is not a string so the
			// body validator can reject operator-style names.
			if !isContainer(v[key]) {
				w.fields = append(w.fields, domain.BodyField{Name: child})
				continue
			}
			if !w.walk(child, v[key]) {
				return false
			}
		}
	case []any:
		w.remaining--
		if w.remaining < 0 {
			return false
		}
		for i, item := range v {
			child := fmt.Sprintf("%s[%d]", path, i)
			if s, ok := item.(string); ok {
				w.fields = append(w.fields, domain.BodyField{Name: child, Value: s})
				continue
			}
			if isContainer(item) {
				if !w.walk(child, item) {
					return false
				}
			}
		}
	case string:
		// Top-level bare string document.
		w.fields = append(w.fields, domain.BodyField{Name: joinPath(path, opaqueBodyField), Value: v})
	}
	return true
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
