package domain

import "encoding/json"

// Opt is a field that an advisory document may or may not carry.
type Opt[T any] struct {
	Value   T
	Present bool
}

func Some[T any](v T) Opt[T] { return Opt[T]{Value: v, Present: true} }

func None[T any]() Opt[T] { return Opt[T]{} }

// Or returns the value when present and def otherwise.
func (o Opt[T]) Or(def T) T {
	if o.Present {
		return o.Value
	}
	return def
}

// MarshalJSON encodes an absent field as null.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Present {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = Opt[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// Advisory is what an advisory service told us about one reference.
// Absent fields mean "no data" and callers fall back to their defaults.
type Advisory struct {
	Ref       string       `json:"ref"`
	BaseScore Opt[float64] `json:"base_score"`
	PatchHint Opt[string]  `json:"patch_hint"`
	Summary   Opt[string]  `json:"summary"`
}

// Found reports whether the lookup produced any usable field.
func (a Advisory) Found() bool {
	return a.BaseScore.Present || a.PatchHint.Present || a.Summary.Present
}
