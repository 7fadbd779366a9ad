package derive

import (
	"math/rand/v2"
	"strings"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
)

// seedKey is the conventional seed input across tool schemas.
const seedKey = "input_seed"

// MutateSeed varies the seed for a rerun: numeric seeds increment by one,
// anything else is replaced with a fresh random 32-bit value. Keeping the
// increment deterministic makes rerun chains reproducible.
func MutateSeed(inputs map[string]any) {
	switch v := inputs[seedKey].(type) {
	case float64:
		inputs[seedKey] = v + 1
		return
	case int:
		inputs[seedKey] = v + 1
		return
	case int64:
		inputs[seedKey] = v + 1
		return
	case int32:
		inputs[seedKey] = v + 1
		return
	}
	inputs[seedKey] = RandomSeed()
}

// RandomSeed returns a uniform seed in [0, 2^31).
func RandomSeed() int64 {
	return rand.Int64N(1 << 31)
}

// FilterInputs keeps only draft keys present in the tool schema, dropping
// internal double-underscore keys. Lineage markers recorded alongside a
// payload can therefore never be resubmitted as tool inputs.
func FilterInputs(schema map[string]dataapi.ParamSpec, inputs map[string]any) map[string]any {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if strings.HasPrefix(k, "__") {
			continue
		}
		if _, ok := schema[k]; !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// MergePreferences lays stored user preferences under the payload. Payload
// values win every conflict.
func MergePreferences(prefs, payload map[string]any) map[string]any {
	out := make(map[string]any, len(prefs)+len(payload))
	for k, v := range prefs {
		out[k] = v
	}
	for k, v := range payload {
		out[k] = v
	}
	return out
}
