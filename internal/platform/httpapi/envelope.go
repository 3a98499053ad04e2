package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// itemKeys are the envelope keys under which listings return their records.
var itemKeys = []string{"rules", "feeds", "actions", "lists", "exclusions", "items", "data"}

// listing is a decoded listing response.
type listing struct {
	Items []map[string]any
	// Total is -1 when the response does not report one.
	Total int
}

// decodeListing accepts a bare array or an object envelope.
func decodeListing(body []byte) (listing, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return listing{}, fmt.Errorf("decode listing: %w", err)
	}

	switch v := raw.(type) {
	case []any:
		items, err := records(v)
		return listing{Items: items, Total: -1}, err
	case map[string]any:
		out := listing{Total: totalOf(v)}
		for _, key := range itemKeys {
			if arr, ok := v[key].([]any); ok {
				items, err := records(arr)
				if err != nil {
					return listing{}, fmt.Errorf("%s: %w", key, err)
				}
				out.Items = items
				return out, nil
			}
		}
		return listing{}, fmt.Errorf("decode listing: no records in response")
	default:
		return listing{}, fmt.Errorf("decode listing: unexpected %T", raw)
	}
}

func records(arr []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(arr))
	for i, elem := range arr {
		rec, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("[%d]: expected object, got %T", i, elem)
		}
		out = append(out, rec)
	}
	return out, nil
}

func totalOf(v map[string]any) int {
	for _, key := range []string{"total", "count"} {
		if n, ok := asInt(v[key]); ok {
			return n
		}
	}
	for _, key := range []string{"meta", "pagination"} {
		if m, ok := v[key].(map[string]any); ok {
			if n, ok := asInt(m["total"]); ok {
				return n
			}
		}
	}
	return -1
}

func asInt(v any) (int, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(string(n))
	return i, err == nil
}

// decodeRecord decodes a single-object response.
func decodeRecord(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// errorMessage extracts a message from an error response body.
func errorMessage(body []byte) string {
	var v map[string]any
	if err := json.Unmarshal(body, &v); err == nil {
		for _, key := range []string{"message", "error", "detail"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
	}
	msg := string(bytes.TrimSpace(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
