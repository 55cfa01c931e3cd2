/*
Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.

SPDX-License-Identifier: MIT-0
*/

package types

import (
	"fmt"
)

// TransportError is returned when the connection to the worker could not be
// established, or broke while a request was outstanding.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CodecError is returned for malformed, truncated or mistagged binary and hex input.
type CodecError struct {
	Type string
	Err  error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("failed decoding %s: %s", e.Type, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// CryptoError covers key wrapping, AEAD and signing failures.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto error (%s): %s", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when the enclave rejected the operation. Status holds the
// name of the pool status that terminated the watch, e.g. "Invalid" or "Dropped".
type ProtocolError struct {
	Status  string
	TopHash [32]byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("trusted operation 0x%x rejected by enclave: %s", e.TopHash, e.Status)
}

// RemoteError carries the message of a DirectRequestStatus Error response.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "worker returned an error without message"
	}
	return fmt.Sprintf("worker returned an error: %s", e.Message)
}

// TimeoutError is returned when no terminal status arrived within the configured timeout.
type TimeoutError struct {
	Method   string
	Received int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s after %d message(s): %s", e.Method, e.Received, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// SecretNotFoundError is returned by key stores when the requested key id does not exist.
type SecretNotFoundError struct {
	Err error
}

func (e *SecretNotFoundError) Error() string {
	return e.Err.Error()
}

func (e *SecretNotFoundError) Unwrap() error {
	return e.Err
}
