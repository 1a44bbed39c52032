package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDealParams(t *testing.T) {
	raw := `{
		"iexec_args": "--input data.csv",
		"iexec_input_files": ["https://a.example/1.txt", "", "https://a.example/2.txt"],
		"iexec_result_encryption": true,
		"iexec_result_storage_provider": "ipfs",
		"iexec_result_storage_proxy": "https://result.example",
		"iexec_secrets": {"1": "db-password", "2": "api-token", "x": "ignored", "0": "ignored"}
	}`

	params := ParseDealParams(raw)
	assert.Equal(t, "--input data.csv", params.Args)
	assert.Equal(t, []string{"https://a.example/1.txt", "https://a.example/2.txt"}, params.InputFiles)
	assert.True(t, params.ResultEncryption)
	assert.Equal(t, "ipfs", params.ResultStorageProvider)
	assert.Equal(t, "https://result.example", params.ResultStorageProxy)
	assert.Equal(t, map[int]string{1: "db-password", 2: "api-token"}, params.RequesterSecrets)
}

func TestParseDealParamsFallbacks(t *testing.T) {
	params := ParseDealParams("")
	assert.Empty(t, params.Args)
	assert.Empty(t, params.RequesterSecrets)

	params = ParseDealParams("plain arguments")
	assert.Equal(t, "plain arguments", params.Args)
	assert.False(t, params.ResultEncryption)

	params = ParseDealParams(`{"iexec_args": "only args"}`)
	assert.Equal(t, "only args", params.Args)
	assert.Nil(t, params.InputFiles)
}
