package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"YONASettlement/internal/descriptor"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDescriptorRoundTrip(t *testing.T) {
	out, err := execute(t, "keygen", "--kid", "member-beta-1")
	require.NoError(t, err)
	var kp keyPair
	require.NoError(t, json.Unmarshal([]byte(out), &kp))
	require.Equal(t, "member-beta-1", kp.KID)
	require.Len(t, kp.JWKS.Keys, 1)

	token, err := execute(t, "descriptor", "sign",
		"--key", kp.PrivateKey,
		"--kid", kp.KID,
		"--intent", "INTENT_1_abc",
		"--account", "rrrrrrrrrrrrrrrrrrrrrhoLvTp",
		"--tag", "0",
		"--asset", "RLUSD",
		"--issuer", "rMxCKbEDwqr76QuheSUMdEGf4B9xJ8m5De",
		"--amount", "99.5",
	)
	require.NoError(t, err)
	token = strings.TrimSpace(token)
	require.Len(t, strings.Split(token, "."), 3)

	jwks, err := json.Marshal(kp.JWKS)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "jwks.json")
	require.NoError(t, os.WriteFile(path, jwks, 0o600))

	out, err = execute(t, "descriptor", "verify", "--jwks", path, token)
	require.NoError(t, err)
	var p descriptor.Payload
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	require.Equal(t, "INTENT_1_abc", p.IntentID)
	require.Equal(t, "99.5", p.ReceiveAmount.String())
	require.Len(t, p.InvoiceID, 64)

	t.Run("fail, verify with another key", func(t *testing.T) {
		other, err := execute(t, "keygen")
		require.NoError(t, err)
		var kp2 keyPair
		require.NoError(t, json.Unmarshal([]byte(other), &kp2))
		raw, err := json.Marshal(kp2.JWKS)
		require.NoError(t, err)
		path2 := filepath.Join(t.TempDir(), "other.json")
		require.NoError(t, os.WriteFile(path2, raw, 0o600))

		_, err = execute(t, "descriptor", "verify", "--jwks", path2, token)
		require.ErrorIs(t, err, descriptor.ErrInvalidToken)
	})

	t.Run("fail, short seed", func(t *testing.T) {
		_, err := execute(t, "descriptor", "sign", "--key", "AAAA", "--intent", "I", "--account", "r", "--asset", "XRP", "--amount", "1")
		require.Error(t, err)
	})
}

func TestCurrencyCommands(t *testing.T) {
	out, err := execute(t, "currency", "encode", "RLUSD")
	require.NoError(t, err)
	code := strings.TrimSpace(out)
	require.Len(t, code, 40)

	out, err = execute(t, "currency", "decode", code)
	require.NoError(t, err)
	require.Equal(t, "RLUSD", strings.TrimSpace(out))

	out, err = execute(t, "currency", "encode", "usd")
	require.NoError(t, err)
	require.Equal(t, "USD", strings.TrimSpace(out))

	_, err = execute(t, "currency", "encode", "X")
	require.Error(t, err)
}

func TestParseIssue(t *testing.T) {
	require.Equal(t, "XRP", parseIssue("XRP").Currency)
	i := parseIssue("RLUSD.rMxCKbEDwqr76QuheSUMdEGf4B9xJ8m5De")
	require.Equal(t, "RLUSD", i.Currency)
	require.Equal(t, "rMxCKbEDwqr76QuheSUMdEGf4B9xJ8m5De", i.Issuer)
}
