package googleauth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type sequenceSource struct {
	tokens []*oauth2.Token
	err    error
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	tok := s.tokens[0]
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
	return tok, nil
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, saveToken(path, &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: expiry}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err := loadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "access", tok.AccessToken)
	assert.Equal(t, "refresh", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(expiry))
}

func TestLoadTokenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := loadToken(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = loadToken(bad)
	assert.Error(t, err)
}

func TestSavingTokenSourcePersistsRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	src := &savingTokenSource{
		base: &sequenceSource{tokens: []*oauth2.Token{
			{AccessToken: "old"},
			{AccessToken: "new", RefreshToken: "r"},
		}},
		path: path,
		last: "old",
	}

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "old", tok.AccessToken)
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	tok, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)

	saved, err := loadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "new", saved.AccessToken)
}

func TestSavingTokenSourceError(t *testing.T) {
	src := &savingTokenSource{base: &sequenceSource{err: errors.New("invalid_grant")}, path: filepath.Join(t.TempDir(), "t.json")}
	_, err := src.Token()
	assert.ErrorContains(t, err, "invalid_grant")
}

func TestGetOAuth2ClientMissingCredentials(t *testing.T) {
	_, err := GetOAuth2Client(context.Background(), filepath.Join(t.TempDir(), "nope.json"), "token.json")
	assert.ErrorContains(t, err, "failed to read credentials")
}

func TestGetOAuth2ClientUsesCachedToken(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(`{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["urn:ietf:wg:oauth:2.0:oob"]}}`), 0o600))

	tokenPath := filepath.Join(dir, "token.json")
	require.NoError(t, saveToken(tokenPath, &oauth2.Token{AccessToken: "cached", Expiry: time.Now().Add(time.Hour)}))

	client, err := GetOAuth2Client(context.Background(), creds, tokenPath, "https://www.googleapis.com/auth/gmail.readonly")
	require.NoError(t, err)
	assert.NotNil(t, client)
}
