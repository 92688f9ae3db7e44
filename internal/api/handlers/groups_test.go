package handlers_test

import (
	"net/http"
	"testing"

	"github.com/dom/neighbor-group/internal/api/handlers"
	"github.com/dom/neighbor-group/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupHandler_ViewGate(t *testing.T) {
	ts := testutil.NewTestServer(t)
	member, memberToken := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	_, outsiderToken := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	testutil.NewGroupBuilder().WithName("Maple Street").WithSlug("maple").WithMember(member).Build(t, ts.DB.DB)

	tests := []struct {
		name           string
		slug           string
		token          string
		expectedStatus int
		checkResponse  func(*testing.T, *http.Response)
	}{
		{
			name:           "unknown group",
			slug:           "nowhere",
			token:          "",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "anonymous is sent to login",
			slug:           "maple",
			token:          "",
			expectedStatus: http.StatusSeeOther,
			checkResponse: func(t *testing.T, resp *http.Response) {
				assert.Equal(t, "/login?redirect=%2Fmaple", resp.Header.Get("Location"))
			},
		},
		{
			name:           "non-member gets a join prompt",
			slug:           "maple",
			token:          outsiderToken,
			expectedStatus: http.StatusForbidden,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var body testutil.ErrorBody
				testutil.AssertJSONResponse(t, resp, &body)
				assert.Equal(t, "NOT_A_MEMBER", body.Code)
				assert.Equal(t, "/api/v1/groups/maple/join", body.Join)
			},
		},
		{
			name:           "member sees the group",
			slug:           "maple",
			token:          memberToken,
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var view handlers.GroupViewResponse
				testutil.AssertJSONResponse(t, resp, &view)
				assert.Equal(t, "Maple Street", view.Group.Name)
				assert.Equal(t, int64(1), view.MemberCount)
				assert.Empty(t, view.Messages)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, ts, "/groups/"+tt.slug, tt.token)
			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
			if tt.checkResponse != nil {
				tt.checkResponse(t, resp)
			}
		})
	}
}

func TestGroupHandler_Create(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	tests := []struct {
		name           string
		request        map[string]string
		token          string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "creates and derives slug",
			request:        map[string]string{"name": "Oak Lane", "description": "Neighbors on Oak"},
			token:          token,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "slug taken",
			request:        map[string]string{"name": "Other Oak", "slug": "oak-lane"},
			token:          token,
			expectedStatus: http.StatusConflict,
			expectedCode:   "SLUG_TAKEN",
		},
		{
			name:           "reserved slug",
			request:        map[string]string{"name": "Login"},
			token:          token,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION",
		},
		{
			name:           "anonymous",
			request:        map[string]string{"name": "Elm"},
			token:          "",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts, "/groups/", tt.request, tt.token, "")

			if tt.expectedCode != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedCode)
				return
			}
			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
		})
	}

	t.Run("creator is a member", func(t *testing.T) {
		resp := get(t, ts, "/groups/oak-lane", token)
		testutil.AssertStatusCode(t, resp, http.StatusOK)
	})

	t.Run("listed", func(t *testing.T) {
		resp := get(t, ts, "/groups/", "")
		testutil.AssertStatusCode(t, resp, http.StatusOK)

		var groups []handlers.GroupResponse
		testutil.AssertJSONResponse(t, resp, &groups)
		require.Len(t, groups, 1)
		assert.Equal(t, "oak-lane", groups[0].Slug)
		assert.Equal(t, "Neighbors on Oak", groups[0].Description)
	})
}

func TestGroupHandler_JoinPostLeave(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	testutil.NewGroupBuilder().WithSlug("maple").Build(t, ts.DB.DB)

	resp := post(t, ts, "/groups/maple/messages", map[string]string{"body": "hello"}, token, "")
	testutil.AssertErrorResponse(t, resp, http.StatusForbidden, "NOT_A_MEMBER")

	for i := 0; i < 2; i++ {
		resp = post(t, ts, "/groups/maple/join", nil, token, "")
		testutil.AssertStatusCode(t, resp, http.StatusOK)

		var joined handlers.MembershipResponse
		testutil.AssertJSONResponse(t, resp, &joined)
		assert.True(t, joined.Member)
	}

	resp = post(t, ts, "/groups/maple/messages", map[string]string{"body": "  "}, token, "")
	testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "VALIDATION")

	resp = post(t, ts, "/groups/maple/messages", map[string]string{"body": "Lost cat on Maple"}, token, "")
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	var posted handlers.MessageResponse
	testutil.AssertJSONResponse(t, resp, &posted)
	assert.Equal(t, "Lost cat on Maple", posted.Body)

	resp = get(t, ts, "/groups/maple", token)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var view handlers.GroupViewResponse
	testutil.AssertJSONResponse(t, resp, &view)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, posted.ID, view.Messages[0].ID)
	assert.Equal(t, int64(1), view.MemberCount)

	resp = post(t, ts, "/groups/maple/leave", nil, token, "")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var left handlers.MembershipResponse
	testutil.AssertJSONResponse(t, resp, &left)
	assert.False(t, left.Member)

	resp = get(t, ts, "/groups/maple", token)
	testutil.AssertStatusCode(t, resp, http.StatusForbidden)

	t.Run("unknown group", func(t *testing.T) {
		resp := post(t, ts, "/groups/nowhere/join", nil, token, "")
		testutil.AssertErrorResponse(t, resp, http.StatusNotFound, "NOT_FOUND")
	})
}
