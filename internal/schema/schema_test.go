package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dbJSON(usingRaw string) string {
	return `{
		"schemas": [{
			"name": "api",
			"objects": [{
				"kind": "table", "name": "accounts",
				"columns": [{"name": "id", "data_type": "int4", "primary_key": true}],
				"permissions": [{
					"role": "public", "grant": ["select"], "policy_for": ["select"],
					"using": [{"raw": "` + usingRaw + `"}]
				}]
			}]
		}]
	}`
}

func TestLoadAcceptsValidRawCondition(t *testing.T) {
	db, err := Load([]byte(dbJSON(`id > 0`)))
	require.NoError(t, err)
	obj, err := db.GetObject("api", "accounts")
	require.NoError(t, err)
	policies := obj.Permissions.Policies[grantKey{Role: "public", Action: ActionSelect}]
	require.Len(t, policies, 1)
	require.Len(t, policies[0].Using, 1)
	assert.Equal(t, "id > 0", policies[0].Using[0].Raw)
}

func TestLoadRejectsMalformedRawCondition(t *testing.T) {
	_, err := Load([]byte(dbJSON(`id >>> nonsense (((`)))
	require.Error(t, err)
}
