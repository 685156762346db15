package server_test

import (
	"testing"

	"card-inventory/core/server"

	"github.com/stretchr/testify/assert"
)

func TestConfig_IsValidEnvironment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"Development", server.EnvironmentDevelopment, true},
		{"Production", server.EnvironmentProduction, true},
		{"Invalid", "staging", false},
		{"Empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := server.Config{Environment: tt.env}
			assert.Equal(t, tt.want, c.IsValidEnvironment())
		})
	}
}

func TestConfig_BodyLimit(t *testing.T) {
	assert.Equal(t, 32*1024*1024, server.Config{}.BodyLimit())
	assert.Equal(t, 4*1024*1024, server.Config{BodyLimitMB: 4}.BodyLimit())
}
