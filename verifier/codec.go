package verifier

import "encoding/json"

// encodeResult/decodeResult give the cache a JSON wire format for Result,
// satisfying §8's "Result serialisation round-trips: parse(serialise(r)) =
// r for JSON" invariant directly — the cache entry IS a serialised Result.
func encodeResult(r Result) ([]byte, bool) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, false
	}
	return data, true
}

func decodeResult(data []byte) (Result, bool) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, false
	}
	return r, true
}
