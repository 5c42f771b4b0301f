package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) string {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialSendReceive(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sc, err := Dial(context.Background(), echoServer(t), logger)
	require.NoError(t, err)
	defer sc.Close()

	require.NoError(t, sc.SendTo("battle-gen9randombattle-1", "/choose move 1|3"))
	msg, err := sc.Receive()
	require.NoError(t, err)
	assert.Equal(t, "battle-gen9randombattle-1|/choose move 1|3", msg)

	require.NoError(t, sc.JoinRoom("lobby"))
	msg, err = sc.Receive()
	require.NoError(t, err)
	assert.Equal(t, "|/join lobby", msg)
}

func TestDialFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/showdown", logger)
	assert.Error(t, err)
}

func loginServer(t *testing.T, respond func(form url.Values) string) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Write([]byte(respond(r.PostForm)))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestLoginWithPassword(t *testing.T) {
	var got url.Values
	u := loginServer(t, func(form url.Values) string {
		got = form
		return `]{"actionsuccess":true,"assertion":"abc123,sig"}`
	})

	l := Login{URL: u, Username: "Bot_Naila", Password: "hunter2"}
	assertion, err := l.Assertion(context.Background(), "4|deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "abc123,sig", assertion)
	assert.Equal(t, "login", got.Get("act"))
	assert.Equal(t, "Bot_Naila", got.Get("name"))
	assert.Equal(t, "4|deadbeef", got.Get("challstr"))
	assert.Equal(t, "/trn Bot_Naila,0,abc123,sig", TrnCommand("Bot_Naila", assertion))
}

func TestLoginGuest(t *testing.T) {
	u := loginServer(t, func(form url.Values) string {
		assert.Equal(t, "getassertion", form.Get("act"))
		return "guestassertion"
	})

	assertion, err := Login{URL: u, Username: "Bot_1234"}.Assertion(context.Background(), "4|x")
	require.NoError(t, err)
	assert.Equal(t, "guestassertion", assertion)
}

func TestLoginRejected(t *testing.T) {
	cases := map[string]string{
		"registered name": ";;The name you chose is registered",
		"bad password":    `]{"actionsuccess":false,"assertion":""}`,
		"not json":        "]<html>",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			u := loginServer(t, func(url.Values) string { return body })
			password := ""
			if strings.HasPrefix(body, "]") {
				password = "pw"
			}
			_, err := Login{URL: u, Username: "x", Password: password}.Assertion(context.Background(), "4|x")
			assert.ErrorIs(t, err, ErrLoginFailed)
		})
	}
}

func TestChallstr(t *testing.T) {
	c, ok := Challstr("|challstr|4|abcdef")
	assert.True(t, ok)
	assert.Equal(t, "4|abcdef", c)

	_, ok = Challstr("|updateuser| Guest 1|0|1")
	assert.False(t, ok)
}
