package session

// Paths mounted in every stage.
const (
	InputDir  = "/iexec_in"
	OutputDir = "/iexec_out"
)

// Pre-compute environment.
const (
	EnvTaskID             = "IEXEC_TASK_ID"
	EnvPreComputeOut      = "IEXEC_PRE_COMPUTE_OUT"
	EnvIsDatasetRequired  = "IS_DATASET_REQUIRED"
	EnvDatasetKey         = "IEXEC_DATASET_KEY"
	EnvDatasetTag         = "IEXEC_DATASET_TAG"
	EnvDatasetURL         = "IEXEC_DATASET_URL"
	EnvDatasetChecksum    = "IEXEC_DATASET_CHECKSUM"
	EnvDatasetFilename    = "IEXEC_DATASET_FILENAME"
	EnvInputFilesNumber   = "IEXEC_INPUT_FILES_NUMBER"
	EnvInputFileURLPrefix = "IEXEC_INPUT_FILE_URL_"
)

// App-compute environment.
const (
	EnvIn                    = "IEXEC_IN"
	EnvOut                   = "IEXEC_OUT"
	EnvBotSize               = "IEXEC_BOT_SIZE"
	EnvBotFirstIndex         = "IEXEC_BOT_FIRST_INDEX"
	EnvBotTaskIndex          = "IEXEC_BOT_TASK_INDEX"
	EnvInputFileNamePrefix   = "IEXEC_INPUT_FILE_NAME_"
	EnvAppDeveloperSecret    = "IEXEC_APP_DEVELOPER_SECRET"
	EnvRequesterSecretPrefix = "IEXEC_REQUESTER_SECRET_"
)

// Post-compute environment.
const (
	EnvResultTaskID                  = "RESULT_TASK_ID"
	EnvResultEncryption              = "RESULT_ENCRYPTION"
	EnvResultEncryptionPublicKey     = "RESULT_ENCRYPTION_PUBLIC_KEY"
	EnvResultStorageCallback         = "RESULT_STORAGE_CALLBACK"
	EnvResultStorageProvider         = "RESULT_STORAGE_PROVIDER"
	EnvResultStorageProxy            = "RESULT_STORAGE_PROXY"
	EnvResultStorageToken            = "RESULT_STORAGE_TOKEN"
	EnvResultSignWorkerAddress       = "RESULT_SIGN_WORKER_ADDRESS"
	EnvResultSignTeeChallengePrivKey = "RESULT_SIGN_TEE_CHALLENGE_PRIVATE_KEY"
)

// Result storage providers.
const (
	StorageProviderIPFS    = "ipfs"
	StorageProviderDropbox = "dropbox"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
