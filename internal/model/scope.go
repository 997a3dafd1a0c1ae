package model

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON accepts scope as either a single string or a JSON array of
// strings, per spec §3.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = Scope{single}
		return nil
	}

	var multi []string
	if err := json.Unmarshal(data, &multi); err == nil {
		*s = Scope(multi)
		return nil
	}

	return fmt.Errorf("scope must be a string or an array of strings")
}

// MarshalJSON renders a single-element scope as a bare string to match how
// most issuers author it, and a multi-element scope as an array.
func (s Scope) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

// Contains reports whether action is present in the scope.
func (s Scope) Contains(action string) bool {
	for _, a := range s {
		if a == action {
			return true
		}
	}
	return false
}
