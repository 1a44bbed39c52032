/*
Package handlers implements the HTTP handlers of the secret management
service.

SecretsHandler serves secret existence checks, owner-signed writes and
owner-signed reads for the three secret kinds. TeeHandler serves enclave
challenge issuance, TEE session provisioning and the result secrets of
standard tasks.

Handlers decode requests, delegate authorization to the auth package and
map domain errors to HTTP status codes. Authorization failures are answered
with a bare 401: the failing step is only logged.
*/
package handlers
