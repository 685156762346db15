package integrity

import (
	"testing"

	"card-inventory/core/storage/mocks"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLoader(t *testing.T) {
	db, _ := setupMockDB(t)
	feature := NewFeature(NewService(db, nil, new(mocks.Client), "test-bucket", "imports", zap.NewNop()))

	assert.Equal(t, "integrity", feature.Name())
	assert.True(t, feature.IsEnabled())

	app := fiber.New()
	err := feature.Load(app)
	assert.NoError(t, err)

	assert.False(t, NewFeature(NewService(nil, nil, nil, "", "", zap.NewNop())).IsEnabled())
}
