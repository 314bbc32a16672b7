package httpapi

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

func TestToEnvBindingDTO_RedactsSecretValue(t *testing.T) {
	dto := toEnvBindingDTO(domain.RobotEnvBinding{Key: "API_KEY", Value: "ciphertext-blob", IsSecret: true})
	assert.Nil(t, dto.Value, "secret bindings must never surface their value")
	assert.True(t, dto.IsSecret)
	assert.True(t, dto.IsSet)
}

func TestToEnvBindingDTO_UnsetSecretReportsIsSetFalse(t *testing.T) {
	dto := toEnvBindingDTO(domain.RobotEnvBinding{Key: "API_KEY", Value: "", IsSecret: true})
	assert.Nil(t, dto.Value)
	assert.False(t, dto.IsSet)
}

func TestToEnvBindingDTO_PlaintextValuePassesThrough(t *testing.T) {
	dto := toEnvBindingDTO(domain.RobotEnvBinding{Key: "REGION", Value: "us-east-1", IsSecret: false})
	require.NotNil(t, dto.Value)
	assert.Equal(t, "us-east-1", *dto.Value)
	assert.False(t, dto.IsSecret)
	assert.True(t, dto.IsSet)
}

func TestParseUUIDParam(t *testing.T) {
	valid := uuid.New()
	id, ok := parseUUIDParam(valid.String())
	assert.True(t, ok)
	assert.Equal(t, valid, id)

	_, ok = parseUUIDParam("not-a-uuid")
	assert.False(t, ok)
}
