package integrity

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"card-inventory/core/middleware/shop"
	"card-inventory/core/storage/mocks"

	"github.com/gofiber/fiber/v2"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T, client *mocks.Client) *fiber.App {
	svc, _, _ := setupService(t, client)
	app := fiber.New()
	app.Use(shop.New())
	NewHandler(svc).RegisterRoutes(app)
	return app
}

func get(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set(shop.Header, "1")
	resp, err := app.Test(req)
	require.NoError(t, err)

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestHandleLedgerCheck(t *testing.T) {
	app := setupTestApp(t, nil)

	status, body := get(t, app, "/integrity/ledger")
	require.Equal(t, 200, status, body)
	assert.Equal(t, true, body["consistent"])
	assert.Equal(t, float64(1), body["lots"])
	assert.Equal(t, float64(1), body["events"])
}

func TestHandleSchemaCheck(t *testing.T) {
	app := setupTestApp(t, nil)

	status, body := get(t, app, "/integrity/schema")
	require.Equal(t, 200, status, body)
	assert.Equal(t, true, body["matched"])
}

func TestHandleStorageCheck(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		app := setupTestApp(t, nil)
		status, _ := get(t, app, "/integrity/storage")
		assert.Equal(t, 404, status)
	})

	t.Run("Fix", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "test-bucket").Return(false, nil)
		client.On("MakeBucket", mock.Anything, "test-bucket", minio.MakeBucketOptions{}).Return(nil)
		client.On("PutObject", mock.Anything, "test-bucket", mock.Anything, mock.Anything, int64(0), mock.Anything).Return(minio.UploadInfo{}, nil)
		client.On("RemoveObject", mock.Anything, "test-bucket", mock.Anything, mock.Anything).Return(nil)
		app := setupTestApp(t, client)

		status, body := get(t, app, "/integrity/storage?fix=true")
		require.Equal(t, 200, status, body)
		assert.Equal(t, true, body["fixed"])
		assert.Equal(t, true, body["writable"])
	})
}

func TestHandleIntegrityCheck(t *testing.T) {
	app := setupTestApp(t, nil)

	status, body := get(t, app, "/integrity")
	require.Equal(t, 200, status, body)
	assert.Contains(t, body, "ledger")
	assert.Contains(t, body, "schema")
	assert.NotContains(t, body, "storage")
}
