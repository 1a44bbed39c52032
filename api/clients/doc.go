/*
Package clients provides a client library for the secret management API.

SecretsClient signs write and read requests with the caller's Ethereum key,
computing the same challenge hashes the service verifies:

	client := clients.NewSecretsClient("http://localhost:13300", ownerKey)
	err := client.AddWeb2Secret(ctx, "api-key", "s3cr3t")

Existence checks and the enclave challenge endpoint need no key.
*/
package clients
