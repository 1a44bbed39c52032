package interfaces

import "strings"

// Field counts of the fingerprint variants.
const (
	DatasetFingerprintFields = 2
	ServiceFingerprintFields = 3
	AppFingerprintFields     = 4
)

// DatasetFingerprint holds the protected volume key and tag of a dataset.
type DatasetFingerprint struct {
	Key string
	Tag string
}

// ServiceFingerprint identifies a pre-compute or post-compute enclave.
type ServiceFingerprint struct {
	Key       string
	Tag       string
	MrEnclave string
}

// AppFingerprint identifies an application enclave and its entrypoint.
type AppFingerprint struct {
	Key        string
	Tag        string
	MrEnclave  string
	Entrypoint string
}

// splitFingerprint splits raw on '|' and returns the fields if at least
// expected of them are present and non-empty.
func splitFingerprint(raw string, expected int) ([]string, bool) {
	if raw == "" || expected <= 0 {
		return nil, false
	}
	fields := strings.Split(raw, "|")
	if len(fields) < expected {
		return nil, false
	}
	for _, f := range fields[:expected] {
		if f == "" {
			return nil, false
		}
	}
	return fields, true
}

// ParseDatasetFingerprint parses "key|tag".
func ParseDatasetFingerprint(raw string) (DatasetFingerprint, bool) {
	fields, ok := splitFingerprint(raw, DatasetFingerprintFields)
	if !ok {
		return DatasetFingerprint{}, false
	}
	return DatasetFingerprint{Key: fields[0], Tag: fields[1]}, true
}

// ParseServiceFingerprint parses "key|tag|mrEnclave".
func ParseServiceFingerprint(raw string) (ServiceFingerprint, bool) {
	fields, ok := splitFingerprint(raw, ServiceFingerprintFields)
	if !ok {
		return ServiceFingerprint{}, false
	}
	return ServiceFingerprint{Key: fields[0], Tag: fields[1], MrEnclave: fields[2]}, true
}

// ParseAppFingerprint parses "key|tag|mrEnclave|entrypoint".
func ParseAppFingerprint(raw string) (AppFingerprint, bool) {
	fields, ok := splitFingerprint(raw, AppFingerprintFields)
	if !ok {
		return AppFingerprint{}, false
	}
	return AppFingerprint{Key: fields[0], Tag: fields[1], MrEnclave: fields[2], Entrypoint: fields[3]}, true
}
