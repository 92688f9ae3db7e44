package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dom/neighbor-group/internal/testutil"
	"github.com/dom/neighbor-group/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wsTimeout = 2 * time.Second

func TestWebSocketHandler_Gate(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, outsiderToken := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	testutil.NewGroupBuilder().WithSlug("maple").Build(t, ts.DB.DB)

	tests := []struct {
		name           string
		slug           string
		token          string
		expectedStatus int
	}{
		{name: "unknown group", slug: "nowhere", token: outsiderToken, expectedStatus: http.StatusNotFound},
		{name: "anonymous", slug: "maple", token: "", expectedStatus: http.StatusUnauthorized},
		{name: "bad token", slug: "maple", token: "not-a-token", expectedStatus: http.StatusUnauthorized},
		{name: "non-member", slug: "maple", token: outsiderToken, expectedStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := gorillaWS.DefaultDialer.Dial(ts.WebSocketURL(tt.slug), testutil.SessionHeader(tt.token))
			if conn != nil {
				conn.Close()
			}
			require.ErrorIs(t, err, gorillaWS.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestWebSocketHandler_QueryTokenIsIgnored(t *testing.T) {
	ts := testutil.NewTestServer(t)
	member, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	testutil.NewGroupBuilder().WithSlug("maple").WithMember(member).Build(t, ts.DB.DB)

	conn, resp, err := gorillaWS.DefaultDialer.Dial(ts.WebSocketURL("maple")+"?token="+token, nil)
	if conn != nil {
		conn.Close()
	}
	require.ErrorIs(t, err, gorillaWS.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketHandler_LiveFeed(t *testing.T) {
	ts := testutil.NewTestServer(t)
	ann, annToken := testutil.NewUserBuilder().WithName("Ann").BuildAndAuthenticate(t, ts)
	bob, bobToken := testutil.NewUserBuilder().WithName("Bob").BuildAndAuthenticate(t, ts)
	group := testutil.NewGroupBuilder().WithSlug("maple").WithMember(ann).Build(t, ts.DB.DB)

	annWS := testutil.NewWSClient(t, ts.WebSocketURL("maple"), annToken)
	msg := annWS.ExpectMessage(websocket.MessageTypeConnected, wsTimeout)
	var connected websocket.ConnectedPayload
	annWS.DecodePayload(msg, &connected)
	assert.Equal(t, group.ID, connected.GroupID)
	assert.Equal(t, "maple", connected.Slug)
	assert.Equal(t, ann.ID, connected.UserID)

	annWS.Ping()
	annWS.ExpectMessage(websocket.MessageTypePong, wsTimeout)

	resp := post(t, ts, "/groups/maple/join", nil, bobToken, "")
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	msg = annWS.SkipUntilMessageType(websocket.MessageTypeMemberJoined, wsTimeout)
	var joined websocket.MembershipPayload
	annWS.DecodePayload(msg, &joined)
	assert.Equal(t, bob.ID, joined.UserID)
	assert.Equal(t, "Bob", joined.Name)

	bobWS := testutil.NewWSClient(t, ts.WebSocketURL("maple"), bobToken)
	bobWS.ExpectMessage(websocket.MessageTypeConnected, wsTimeout)

	resp = post(t, ts, "/groups/maple/messages", map[string]string{"body": "Block party Saturday"}, annToken, "")
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	for _, client := range []*testutil.WSClient{annWS, bobWS} {
		msg := client.SkipUntilMessageType(websocket.MessageTypeMessagePosted, wsTimeout)
		var posted websocket.MessagePostedPayload
		client.DecodePayload(msg, &posted)
		assert.Equal(t, "Block party Saturday", posted.Body)
		assert.Equal(t, "Ann", posted.AuthorName)
		assert.Equal(t, ann.Slug, posted.AuthorSlug)
	}

	resp = post(t, ts, "/groups/maple/leave", nil, bobToken, "")
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	bobWS.ExpectClosed(wsTimeout)

	msg = annWS.SkipUntilMessageType(websocket.MessageTypeMemberLeft, wsTimeout)
	var left websocket.MembershipPayload
	annWS.DecodePayload(msg, &left)
	assert.Equal(t, bob.ID, left.UserID)
	assert.Equal(t, 1, ts.Hub.ClientCount(group.ID))
}
