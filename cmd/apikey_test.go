package cmd

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rnsgate/internal/auth"
	"grimm.is/rnsgate/internal/config"
)

func TestAPIKey_Generate(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runAPIKey(&out, nil, []string{"generate", "--name", "opnsense"}))

	secret := regexp.MustCompile(`Secret: ([0-9a-f]{64})`).FindStringSubmatch(out.String())
	require.Len(t, secret, 2, out.String())

	// The printed block must decode as part of an api section and verify
	// the printed secret.
	block := out.String()[strings.Index(out.String(), "  key "):]
	var rt config.Runtime
	require.NoError(t, hclsimple.Decode("rnsgate.hcl", []byte("api {\n"+block+"}\n"), nil, &rt))
	require.Len(t, rt.API.Keys, 1)
	assert.Equal(t, "opnsense", rt.API.Keys[0].Name)

	keys := auth.NewKeyStore(rt.API.Keys)
	assert.NoError(t, keys.Verify("opnsense", secret[1]))
	assert.Error(t, keys.Verify("opnsense", "wrong"))
}

func TestAPIKey_GenerateRequiresName(t *testing.T) {
	assert.Error(t, runAPIKey(&bytes.Buffer{}, nil, []string{"generate"}))
	assert.Error(t, runAPIKey(&bytes.Buffer{}, nil, []string{"generate", "--name", "bad name"}))
}

func TestAPIKey_Hash(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runAPIKey(&out, strings.NewReader("hunter2\n"), []string{"hash"}))

	hash := strings.TrimSpace(out.String())
	keys := auth.NewKeyStore([]config.APIKey{{Name: "k", SecretHash: hash}})
	assert.NoError(t, keys.Verify("k", "hunter2"))
}

func TestAPIKey_HashWithName(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runAPIKey(&out, strings.NewReader("hunter2"), []string{"hash", "--name", "monitor"}))
	assert.Contains(t, out.String(), `key "monitor"`)
	assert.Contains(t, out.String(), "secret_hash")
}

func TestAPIKey_HashEmpty(t *testing.T) {
	assert.Error(t, runAPIKey(&bytes.Buffer{}, strings.NewReader("\n"), []string{"hash"}))
}

func TestAPIKey_Unknown(t *testing.T) {
	assert.Error(t, runAPIKey(&bytes.Buffer{}, nil, []string{"revoke"}))

	var out bytes.Buffer
	require.NoError(t, runAPIKey(&out, nil, nil))
	assert.Contains(t, out.String(), "apikey generate")
}
