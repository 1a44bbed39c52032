/*
Package api provides the HTTP surface of the secret management service.

This package is organized into three subpackages:

1. handlers - Request decoding, authorization and error mapping
2. servers - HTTP server configuration and lifecycle management
3. clients - Client library for the API

# Endpoints

Secrets are written by their owners, who sign a challenge hash over the
request contents with their Ethereum key:

	HEAD /secrets/web2?ownerAddress=&secretName=     existence of a user secret
	POST /secrets/web2?ownerAddress=&secretName=     add a user secret
	PUT  /secrets/web2?ownerAddress=&secretName=     replace a user secret
	GET  /secrets/web2?ownerAddress=&secretName=     read a user secret
	HEAD /secrets/web3?secretAddress=                existence of an on-chain object secret
	POST /secrets/web3?secretAddress=                add an on-chain object secret
	GET  /secrets/web3?secretAddress=                read an on-chain object secret
	HEAD /apps/{appAddress}/secrets/{index}          existence of an app runtime secret
	POST /apps/{appAddress}/secrets/{index}          set an app runtime secret

The signature travels in the Authorization header, the secret value is the
raw request body.

Workers and schedulers provision enclave sessions:

	GET  /tee/framework                              configured TEE framework
	POST /tee/challenges/{taskId}                    enclave challenge address of a task
	POST /tee/sessions                               provision the session of a TEE task
	POST /untee/secrets                              result secrets of a standard task

# Error Mapping

Authorization failures answer 401 without detail, absent tasks or secrets
404, conflicting writes 409, assembly failures 422 and backend failures 502.
*/
package api
