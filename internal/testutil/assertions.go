package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ErrorBody matches the API error response
type ErrorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	TicketID string `json:"ticketId"`
	Join     string `json:"join"`
}

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertJSONResponse decodes JSON response into v and verifies success
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	err = json.Unmarshal(body, v)
	require.NoError(t, err, "failed to unmarshal response: %s", string(body))
}

// AssertErrorResponse verifies error response with expected status and code
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedCode string) ErrorBody {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	var body ErrorBody
	AssertJSONResponse(t, resp, &body)
	assert.Equal(t, expectedCode, body.Code, "error code mismatch")
	return body
}
