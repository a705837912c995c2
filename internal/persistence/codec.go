package persistence

import "encoding/json"

// encodeIDList/decodeIDList serialize a profile's workspace_order column
// (or any ordered id list) as a JSON array of integers. This is a narrow,
// single-column encoding with no wire-protocol or config surface, so it
// uses encoding/json directly rather than the bridge's or settings'
// dedicated serialization libraries.
func encodeIDList[T ~uint64](ids []T) string {
	body, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(body)
}

func decodeIDList[T ~uint64](raw string) []T {
	if raw == "" {
		return nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
