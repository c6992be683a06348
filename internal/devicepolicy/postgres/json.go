package postgres

import (
	"encoding/json"

	"github.com/fleetops/devicepolicy/internal/devicepolicy"
)

// restrictionsJSON marshals a Restrictions value for the commands.payload
// jsonb column. Marshaling failure on this closed, all-bool struct is not
// possible, so the error is discarded.
func restrictionsJSON(r devicepolicy.Restrictions) []byte {
	b, _ := json.Marshal(r)
	return b
}

func restrictionsFromJSON(b []byte) devicepolicy.Restrictions {
	var r devicepolicy.Restrictions
	_ = json.Unmarshal(b, &r)
	return r
}
