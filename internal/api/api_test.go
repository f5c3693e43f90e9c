package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"chatter/internal/account"
	"chatter/internal/auth"
	"chatter/internal/chat"
	"chatter/internal/groups"
	"chatter/internal/models"
	"chatter/internal/presence"
	"chatter/internal/smartreply"
	"chatter/internal/store"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeBlobs) Upload(_ context.Context, data []byte, _ string, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return "http://media/" + key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, strings.TrimPrefix(ref, "http://media/"))
	return nil
}

func (f *fakeBlobs) Sign(_ context.Context, rawURL string) (string, error) {
	return rawURL + "?signature=ok", nil
}

type staticEmbedder struct{}

func (staticEmbedder) Embed(context.Context, string) ([]float64, error) {
	return []float64{1, 0}, nil
}

type staticCompleter struct{}

func (staticCompleter) SuggestReplies(context.Context, []models.Message, string) ([]string, error) {
	return []string{"Sure!"}, nil
}

type event struct {
	GroupId string
	Type    string
	Data    any
}

type fakeRealtime struct {
	mu        sync.Mutex
	events    []event
	connected map[string]bool
}

func (f *fakeRealtime) BroadcastToGroup(groupId, eventType string, data any, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{groupId, eventType, data})
}

func (f *fakeRealtime) BroadcastAll(eventType string, data any) {
	f.BroadcastToGroup("", eventType, data, "")
}

func (f *fakeRealtime) ClientCount() int { return len(f.connected) }

func (f *fakeRealtime) IsUserConnected(userId string) bool { return f.connected[userId] }

func (f *fakeRealtime) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type testAPI struct {
	server   *httptest.Server
	realtime *fakeRealtime
	blobs    *fakeBlobs
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	users := store.NewUsers(db)
	groupStore := store.NewGroups(db)
	blobs := &fakeBlobs{}
	tokens := auth.NewManager("secret", "chatter", time.Hour)
	realtime := &fakeRealtime{connected: map[string]bool{}}

	messages := chat.NewService(chat.Deps{
		Members:   groupStore,
		Groups:    groupStore,
		Messages:  store.NewMessages(db),
		Blobs:     blobs,
		Embedder:  staticEmbedder{},
		Broadcast: realtime,
		Typing:    presence.NewTypingTracker(),
		Replies:   smartreply.NewComposer(staticCompleter{}, smartreply.DotProduct),
	})

	router := NewRouter(Deps{
		Tokens:   tokens,
		Accounts: account.NewService(users, blobs, tokens),
		Groups:   groups.NewService(groupStore, users, blobs),
		Messages: messages,
		Realtime: realtime,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, realtime: realtime, blobs: blobs}
}

type part struct {
	name, filename, contentType string
	value                       []byte
}

func multipartBody(t *testing.T, parts ...part) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, mw.WriteField(p.name, string(p.value)))
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+p.name+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.value)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func field(name, value string) part {
	return part{name: name, value: []byte(value)}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body io.Reader, contentType string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

func (a *testAPI) doJSON(t *testing.T, method, path, token string, in, out any) int {
	t.Helper()
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return a.do(t, method, path, token, body, "application/json", out)
}

// signup registers and logs in a user, returning its id and token.
func (a *testAPI) signup(t *testing.T, username string) (string, string) {
	t.Helper()
	body, ct := multipartBody(t,
		field("username", username),
		field("email", username+"@example.com"),
		field("password", "pw-"+username),
	)
	var reg registerResponse
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/auth/register", "", body, ct, &reg))

	var login loginResponse
	status := a.doJSON(t, http.MethodPost, "/api/auth/login", "",
		loginRequest{Email: username + "@example.com", Password: "pw-" + username}, &login)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, login.AccessToken)
	assert.Equal(t, reg.User.Id, login.User.Id)
	return login.User.Id, login.AccessToken
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health", "", nil, "", nil))
}

func TestAuth(t *testing.T) {
	a := newTestAPI(t)

	body, ct := multipartBody(t,
		field("username", "alice"),
		field("email", "alice@example.com"),
		field("password", "secret"),
		part{name: "profile_image", filename: "me.png", contentType: "image/png", value: []byte("png")},
	)
	var reg registerResponse
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/auth/register", "", body, ct, &reg))
	assert.Equal(t, "User registered successfully", reg.Message)
	assert.True(t, strings.HasPrefix(reg.User.ProfileImage, "http://media/user/alice-"))

	body, ct = multipartBody(t, field("username", "alice"), field("email", "alice@example.com"), field("password", "x"))
	var failure errorBody
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/auth/register", "", body, ct, &failure))
	assert.Equal(t, "VALIDATION_FAILED", failure.Error)

	status := a.doJSON(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "alice@example.com", Password: "nope"}, &failure)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", failure.Error)
}

func TestRequiresBearerToken(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/groups/owned-groups", "", nil, "", nil))
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/groups/owned-groups", "not-a-jwt", nil, "", nil))
}

func TestGroupsAndMessagesFlow(t *testing.T) {
	a := newTestAPI(t)
	_, aliceToken := a.signup(t, "alice")
	bobId, bobToken := a.signup(t, "bob")
	_, carolToken := a.signup(t, "carol")

	body, ct := multipartBody(t, field("group_name", "friends"), field("member_ids", bobId))
	var group models.Group
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/groups/create", aliceToken, body, ct, &group))
	require.Len(t, group.Members, 2)

	var owned []models.Group
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/groups/owned-groups", aliceToken, nil, "", &owned))
	require.Len(t, owned, 1)

	var memberOf []models.Group
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/groups/member-groups", bobToken, nil, "", &memberOf))
	require.Len(t, memberOf, 1)

	var members []models.Member
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/groups/"+group.Id+"/members", bobToken, nil, "", &members))
	assert.Len(t, members, 2)

	// text message over REST runs the fan-out pipeline
	var sent models.MessageView
	status := a.doJSON(t, http.MethodPost, "/api/messages/text", aliceToken, textMessageRequest{GroupId: group.Id, Content: "hi"}, &sent)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "hi", sent.Content)
	assert.Contains(t, a.realtime.types(), models.EventGroupMessage)

	var failure errorBody
	status = a.doJSON(t, http.MethodPost, "/api/messages/text", carolToken, textMessageRequest{GroupId: group.Id, Content: "let me in"}, &failure)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_A_MEMBER", failure.Error)

	// image message
	body, ct = multipartBody(t,
		field("group_id", group.Id),
		part{name: "image", filename: "cat.gif", contentType: "image/gif", value: []byte("gif")},
	)
	var image models.MessageView
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/messages/image", bobToken, body, ct, &image))
	assert.Equal(t, models.MessageImage, image.Type)
	assert.Equal(t, models.DefaultImageCaption, image.Content)
	assert.Contains(t, image.ImageURL, "?signature=ok")

	body, ct = multipartBody(t, field("group_id", group.Id))
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/messages/image", bobToken, body, ct, nil))

	var history []map[string]any
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/messages/group/"+group.Id, bobToken, nil, "", &history))
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0]["content"])
	assert.NotContains(t, history[0], "embedding")

	var replies smartReplyResponse
	status = a.doJSON(t, http.MethodPost, "/api/messages/smart-replies", bobToken, smartReplyRequest{GroupId: group.Id}, &replies)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, replies.Suggestions, 3)
	assert.Equal(t, "Sure!", replies.Suggestions[0])

	// only the author may delete
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodDelete, "/api/messages/"+image.Id, aliceToken, nil, "", nil))
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodDelete, "/api/messages/"+image.Id, bobToken, nil, "", nil))
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodDelete, "/api/messages/"+image.Id, bobToken, nil, "", nil))
	assert.Contains(t, a.realtime.types(), models.EventMessageDeleted)
	assert.Empty(t, a.blobs.objects)

	// ownership
	status = a.doJSON(t, http.MethodPost, "/api/groups/change-owner", bobToken, changeOwnerRequest{GroupId: group.Id, NewOwnerId: bobId}, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/groups/leave/"+group.Id, aliceToken, nil, "", nil))

	status = a.doJSON(t, http.MethodPost, "/api/groups/change-owner", aliceToken, changeOwnerRequest{GroupId: group.Id, NewOwnerId: bobId}, &group)
	require.Equal(t, http.StatusOK, status)
	owner, ok := group.Owner()
	require.True(t, ok)
	assert.Equal(t, bobId, owner.UserId)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/groups/leave/"+group.Id, aliceToken, nil, "", &group))
	assert.Len(t, group.Members, 1)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/api/groups/leave/missing", aliceToken, nil, "", nil))
}

func TestChatEndpoints(t *testing.T) {
	a := newTestAPI(t)
	aliceId, aliceToken := a.signup(t, "alice")
	a.realtime.connected[aliceId] = true

	var status statusResponse
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/chat/status", "", nil, "", &status))
	assert.Equal(t, "online", status.Status)
	assert.Equal(t, 1, status.ConnectedClients)

	var connected map[string]bool
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/chat/users/"+aliceId+"/connected", aliceToken, nil, "", &connected))
	assert.True(t, connected["connected"])
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/chat/users/someone/connected", aliceToken, nil, "", &connected))
	assert.False(t, connected["connected"])

	assert.Equal(t, http.StatusBadRequest, a.doJSON(t, http.MethodPost, "/api/chat/broadcast", aliceToken, broadcastRequest{}, nil))
	assert.Equal(t, http.StatusCreated, a.doJSON(t, http.MethodPost, "/api/chat/broadcast", aliceToken, broadcastRequest{Message: "maintenance at noon"}, nil))

	require.Len(t, a.realtime.events, 1)
	ev := a.realtime.events[0]
	assert.Equal(t, models.EventServerMessage, ev.Type)
	assert.Equal(t, "maintenance at noon", ev.Data.(models.ServerMessageData).Content)
}
