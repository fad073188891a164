package credstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactedHidesSecret(t *testing.T) {
	cred := Credential{
		ID:     "cred-1",
		Name:   "OpenAI production",
		Type:   "api_key",
		Secret: "sk-very-secret",
	}

	redacted := cred.Redacted()
	assert.Equal(t, "[REDACTED]", redacted.Secret)
	assert.Equal(t, "cred-1", redacted.ID)

	// Original is untouched
	assert.Equal(t, "sk-very-secret", cred.Secret)
}
