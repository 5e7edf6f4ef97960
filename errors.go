/*
Copyright 2025 Remit Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package remit

import (
	"errors"
	"fmt"

	"github.com/studiopay/remit/model"
)

var (
	// ErrParseRejected covers every message that does not yield a payment intent.
	ErrParseRejected = errors.New("message rejected")

	// ErrNotTransfer marks messages whose subject is not a transfer notification.
	// These are ignored rather than abandoned.
	ErrNotTransfer      = fmt.Errorf("%w: subject is not an e-Transfer notification", ErrParseRejected)
	ErrMissingReference = fmt.Errorf("%w: no reference number", ErrParseRejected)
	ErrMissingAmount    = fmt.Errorf("%w: no usable amount", ErrParseRejected)

	ErrDuplicateReference = errors.New("reference already processed in this run")
	ErrNoVerifiedMatch    = errors.New("no verified account match")
	ErrApplyFailed        = errors.New("payment could not be applied")
	ErrBalanceUnavailable = errors.New("balance could not be read after apply")

	// ErrRunInProgress is returned when another process holds the run lock.
	ErrRunInProgress = errors.New("a reconciliation run is already in progress")
)

// AbandonError ends an intent in the abandoned state.
type AbandonError struct {
	Reason model.AbandonReason
	Err    error
}

func (e *AbandonError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AbandonError) Unwrap() error {
	return e.Err
}

func abandon(reason model.AbandonReason, err error) *AbandonError {
	return &AbandonError{Reason: reason, Err: err}
}
