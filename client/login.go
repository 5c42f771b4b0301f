package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const DefaultLoginURL = "https://play.pokemonshowdown.com/action.php"

var ErrLoginFailed = errors.New("login failed")

// Login exchanges a challstr for a signed assertion. Without a password
// the name is claimed as an unregistered user.
type Login struct {
	URL      string
	Username string
	Password string
	HTTP     *http.Client
}

type loginResponse struct {
	ActionSuccess bool   `json:"actionsuccess"`
	Assertion     string `json:"assertion"`
}

// Challstr extracts the challenge from a "|challstr|<id>|<str>" line.
func Challstr(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "|challstr|")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

func (l Login) Assertion(ctx context.Context, challstr string) (string, error) {
	form := url.Values{"challstr": {challstr}}
	if l.Password != "" {
		form.Set("act", "login")
		form.Set("name", l.Username)
		form.Set("pass", l.Password)
	} else {
		form.Set("act", "getassertion")
		form.Set("userid", l.Username)
	}

	loginURL := l.URL
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("error building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpClient := l.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error posting login: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}

	text := strings.TrimPrefix(strings.TrimSpace(string(body)), "]")
	assertion := text
	if l.Password != "" {
		var lr loginResponse
		if err := json.Unmarshal([]byte(text), &lr); err != nil {
			return "", fmt.Errorf("%w: %v", ErrLoginFailed, err)
		}
		assertion = lr.Assertion
	}
	// The server signals rejected names with a ";;" prefixed message.
	if assertion == "" || strings.HasPrefix(assertion, ";") {
		return "", fmt.Errorf("%w: %s", ErrLoginFailed, strings.TrimLeft(assertion, ";"))
	}
	return assertion, nil
}

// TrnCommand is the global command that completes a login.
func TrnCommand(username, assertion string) string {
	return fmt.Sprintf("/trn %s,0,%s", username, assertion)
}
