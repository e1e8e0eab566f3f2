package response

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
)

func TestJSONPublishesOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	JSON(c, http.StatusOK, map[string]string{"id": "1"}, nil)

	outcome, ok := OutcomeOf(c)
	require.True(t, ok)
	assert.True(t, outcome.Success())
	assert.Equal(t, map[string]string{"id": "1"}, outcome.Data)
	assert.JSONEq(t, `{"data":{"id":"1"}}`, rec.Body.String())
}

func TestErrorPublishesFailedOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	Error(c, appErrors.Clone(appErrors.ErrNotFound, "issue not found"))

	outcome, ok := OutcomeOf(c)
	require.True(t, ok)
	assert.False(t, outcome.Success())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, c.Errors, 1)
}
