package chain

import (
	"strconv"

	"github.com/ruteri/tee-secret-management/interfaces"
	"github.com/tidwall/gjson"
)

// Deal parameter fields.
const (
	ParamArgs                  = "iexec_args"
	ParamInputFiles            = "iexec_input_files"
	ParamResultEncryption      = "iexec_result_encryption"
	ParamResultStorageProvider = "iexec_result_storage_provider"
	ParamResultStorageProxy    = "iexec_result_storage_proxy"
	ParamSecrets               = "iexec_secrets"
)

// ParseDealParams decodes the JSON params string of a deal. Params that are
// not a JSON object are treated as plain command line arguments.
func ParseDealParams(raw string) interfaces.DealParams {
	params := interfaces.DealParams{RequesterSecrets: map[int]string{}}
	if raw == "" {
		return params
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		params.Args = raw
		return params
	}

	doc := gjson.Parse(raw)
	params.Args = doc.Get(ParamArgs).String()
	for _, f := range doc.Get(ParamInputFiles).Array() {
		if f.String() != "" {
			params.InputFiles = append(params.InputFiles, f.String())
		}
	}
	params.ResultEncryption = doc.Get(ParamResultEncryption).Bool()
	params.ResultStorageProvider = doc.Get(ParamResultStorageProvider).String()
	params.ResultStorageProxy = doc.Get(ParamResultStorageProxy).String()

	doc.Get(ParamSecrets).ForEach(func(key, value gjson.Result) bool {
		idx, err := strconv.Atoi(key.String())
		if err == nil && idx > 0 && value.String() != "" {
			params.RequesterSecrets[idx] = value.String()
		}
		return true
	})

	return params
}
