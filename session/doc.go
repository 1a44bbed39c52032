// Package session builds and provisions the enclave session of a task.
//
// An Assembler turns a session request into a framework-independent
// interfaces.SessionDescriptor with one service per compute stage:
//
//	pre-compute   only when the deal has a dataset; decrypts the dataset
//	app-compute   the application, with requester and developer secrets
//	post-compute  encrypts, uploads and signs the results
//
// Assembly is all-or-nothing: a missing mandatory secret or an unparseable
// fingerprint aborts it with an error naming the stage.
//
// A Service chains authorization, assembly and dispatch to the configured
// TEE framework backend.
package session
