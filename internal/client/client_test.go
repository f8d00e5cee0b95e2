package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetshare/internal/api"
	"budgetshare/internal/core"
	"budgetshare/internal/services"
)

const base = "http://budget.test"

func newMockActor(t *testing.T, token string) (*Actor, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	return New(Config{BaseURL: base + "/", Token: token, HTTPClient: &http.Client{Transport: mt}}), mt
}

func TestLoginStoresToken(t *testing.T) {
	a, mt := newMockActor(t, "")
	mt.RegisterResponder(http.MethodPost, base+api.PathLogin, func(req *http.Request) (*http.Response, error) {
		var args api.LoginArgs
		if err := json.NewDecoder(req.Body).Decode(&args); err != nil {
			return httpmock.NewStringResponse(400, err.Error()), nil
		}
		if args.Email != "ada@example.com" || args.Password != "password1" {
			return httpmock.NewJsonResponse(401, api.ErrResult(api.KindInvalidLogin, "Wrong email or password."))
		}
		return httpmock.NewJsonResponse(200, map[string]any{
			"ok": api.Session{Token: "tok-1", User: api.User{ID: 1, Email: args.Email}},
		})
	})
	mt.RegisterResponder(http.MethodPost, base+api.PathCall+services.ProcWhoami, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer tok-1" {
			return httpmock.NewJsonResponse(401, api.ErrResult(api.KindNotAuthenticated, "Please sign in."))
		}
		return httpmock.NewJsonResponse(200, map[string]any{"ok": api.User{ID: 1, Email: "ada@example.com", Role: "admin"}})
	})

	_, err := a.Login(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidLogin)
	assert.Empty(t, a.Token())

	sess, err := a.Login(context.Background(), "ada@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Token)
	assert.Equal(t, "tok-1", a.Token())

	me, err := a.Whoami(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", me.Role)
}

func TestRejectErrorMapping(t *testing.T) {
	a, mt := newMockActor(t, "tok")
	mt.RegisterResponder(http.MethodPost, base+api.PathCall+services.ProcGetUsers,
		httpmock.NewStringResponder(403, `{"err":{"kind":"NotAdmin","message":"Only the admin can do that."}}`))
	mt.RegisterResponder(http.MethodPost, base+api.PathCall+services.ProcAcceptInvite,
		httpmock.NewStringResponder(422, `{"err":{"kind":"Expired","message":"This invite link has expired."}}`))
	mt.RegisterResponder(http.MethodPost, base+api.PathCall+services.ProcDeleteTransaction,
		httpmock.NewStringResponder(404, `{"err":{"kind":"NotFound","message":"Not found."}}`))

	_, err := a.GetUsers(context.Background())
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, 403, rej.Status)
	assert.ErrorIs(t, err, core.ErrNotAdmin)
	assert.NotErrorIs(t, err, core.ErrAccessDenied)

	err = a.AcceptInvite(context.Background(), "http://budget.test/invite/abc")
	require.ErrorAs(t, err, &rej)
	kind, ok := rej.InviteKind()
	assert.True(t, ok)
	assert.Equal(t, core.InviteExpired, kind)

	err = a.DeleteTransaction(context.Background(), 7)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAcceptInviteStripsLink(t *testing.T) {
	a, mt := newMockActor(t, "tok")
	var got api.TokenArgs
	mt.RegisterResponder(http.MethodPost, base+api.PathCall+services.ProcAcceptInvite, func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(200, `{"ok":null}`), nil
	})

	require.NoError(t, a.AcceptInvite(context.Background(), "https://budget.example/invite/eyJ.abc.def"))
	assert.Equal(t, "eyJ.abc.def", got.Token)

	require.NoError(t, a.AcceptInvite(context.Background(), " plain-token "))
	assert.Equal(t, "plain-token", got.Token)
}

func TestUnexpectedResponses(t *testing.T) {
	a, mt := newMockActor(t, "tok")
	mt.RegisterResponder(http.MethodPost, base+api.PathCall+services.ProcGetBudgets,
		httpmock.NewStringResponder(502, `<html>bad gateway</html>`))
	mt.RegisterResponder(http.MethodPost, base+api.PathCall+services.ProcWhoami,
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := a.GetBudgets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")

	_, err = a.Whoami(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLogoutForgetsToken(t *testing.T) {
	a, mt := newMockActor(t, "tok")
	mt.RegisterResponder(http.MethodPost, base+api.PathLogout,
		httpmock.NewStringResponder(401, `{"err":{"kind":"NotAuthenticated","message":"Please sign in."}}`))

	require.NoError(t, a.Logout(context.Background()))
	assert.Empty(t, a.Token())
	require.NoError(t, a.Logout(context.Background()))
	assert.Equal(t, 1, mt.GetTotalCallCount())
}
