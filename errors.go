// Copyright 2025 Scadalynx
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bacstack

import (
	"errors"
	"fmt"
)

// Sentinel errors for local failures (spec §7 family 2).
var (
	ErrTimeout                  = errors.New("bacstack: request timeout")
	ErrCancelled                = errors.New("bacstack: operation cancelled")
	ErrConnectionClosed         = errors.New("bacstack: connection closed")
	ErrInvalidResponse          = errors.New("bacstack: invalid response")
	ErrInvalidAPDU              = errors.New("bacstack: invalid APDU")
	ErrInvalidNPDU              = errors.New("bacstack: invalid NPDU")
	ErrInvalidBVLC              = errors.New("bacstack: invalid BVLC header")
	ErrMalformedTag             = errors.New("bacstack: malformed tag")
	ErrSegmentationNotSupported = errors.New("bacstack: segmentation not supported")
	ErrDeviceNotFound           = errors.New("bacstack: device not found")
	ErrPropertyNotFound         = errors.New("bacstack: property not found")
	ErrWriteFailed              = errors.New("bacstack: write failed")
	ErrNotConnected             = errors.New("bacstack: not connected")
	ErrAlreadyConnected         = errors.New("bacstack: already connected")
	ErrInvalidState             = errors.New("bacstack: invalid state")
	ErrTransportFailure         = errors.New("bacstack: transport failure")
)

// ErrorClass is the class half of a BACnet Error-PDU.
type ErrorClass uint8

const (
	ErrorClassDevice        ErrorClass = 0
	ErrorClassObject        ErrorClass = 1
	ErrorClassProperty      ErrorClass = 2
	ErrorClassResources     ErrorClass = 3
	ErrorClassSecurity      ErrorClass = 4
	ErrorClassServices      ErrorClass = 5
	ErrorClassVT            ErrorClass = 6
	ErrorClassCommunication ErrorClass = 7
)

func (e ErrorClass) String() string {
	names := map[ErrorClass]string{
		ErrorClassDevice: "device", ErrorClassObject: "object", ErrorClassProperty: "property",
		ErrorClassResources: "resources", ErrorClassSecurity: "security", ErrorClassServices: "services",
		ErrorClassVT: "vt", ErrorClassCommunication: "communication",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("error-class(%d)", e)
}

// ErrorCode is the code half of a BACnet Error-PDU.
type ErrorCode uint16

const (
	ErrorCodeOther                              ErrorCode = 0
	ErrorCodeAuthenticationFailed                ErrorCode = 1
	ErrorCodeConfigurationInProgress             ErrorCode = 2
	ErrorCodeDeviceBusy                          ErrorCode = 3
	ErrorCodeDynamicCreationNotSupported         ErrorCode = 4
	ErrorCodeFileAccessDenied                    ErrorCode = 5
	ErrorCodeIncompatibleSecurityLevels          ErrorCode = 6
	ErrorCodeInconsistentParameters              ErrorCode = 7
	ErrorCodeInconsistentSelectionCriterion      ErrorCode = 8
	ErrorCodeInvalidDataType                     ErrorCode = 9
	ErrorCodeInvalidFileAccessMethod             ErrorCode = 10
	ErrorCodeInvalidFileStartPosition            ErrorCode = 11
	ErrorCodeInvalidOperatorName                 ErrorCode = 12
	ErrorCodeInvalidParameterDataType             ErrorCode = 13
	ErrorCodeInvalidTimeStamp                    ErrorCode = 14
	ErrorCodeKeyGenerationError                  ErrorCode = 15
	ErrorCodeMissingRequiredParameter             ErrorCode = 16
	ErrorCodeNoObjectsOfSpecifiedType            ErrorCode = 17
	ErrorCodeNoSpaceForObject                    ErrorCode = 18
	ErrorCodeNoSpaceToAddListElement             ErrorCode = 19
	ErrorCodeNoSpaceToWriteProperty              ErrorCode = 20
	ErrorCodeNotConfiguredForTriggeredLogging    ErrorCode = 21
	ErrorCodePropertyIsNotAList                  ErrorCode = 22
	ErrorCodeObjectDeletionNotPermitted          ErrorCode = 23
	ErrorCodeObjectIdentifierAlreadyExists       ErrorCode = 24
	ErrorCodeOperationalProblem                  ErrorCode = 25
	ErrorCodePasswordFailure                     ErrorCode = 26
	ErrorCodeReadAccessDenied                    ErrorCode = 27
	ErrorCodeSecurityNotSupported                ErrorCode = 28
	ErrorCodeServiceRequestDenied                ErrorCode = 29
	ErrorCodeTimeout                             ErrorCode = 30
	ErrorCodeUnknownObject                       ErrorCode = 31
	ErrorCodeUnknownProperty                     ErrorCode = 32
	ErrorCodeUnknownSubscription                 ErrorCode = 33
	ErrorCodeUnknownVtClass                      ErrorCode = 34
	ErrorCodeUnknownVtSession                    ErrorCode = 35
	ErrorCodeUnsupportedObjectType               ErrorCode = 36
	ErrorCodeValueOutOfRange                     ErrorCode = 37
	ErrorCodeVtSessionAlreadyClosed              ErrorCode = 38
	ErrorCodeVtSessionTerminationFailure         ErrorCode = 39
	ErrorCodeWriteAccessDenied                   ErrorCode = 40
	ErrorCodeCharacterSetNotSupported            ErrorCode = 41
	ErrorCodeInvalidArrayIndex                   ErrorCode = 42
	ErrorCodeCovSubscriptionFailed               ErrorCode = 43
	ErrorCodeNotCovProperty                      ErrorCode = 44
	ErrorCodeOptionalFunctionalityNotSupported   ErrorCode = 45
	ErrorCodeInvalidConfigurationData            ErrorCode = 46
	ErrorCodeDatatypeNotSupported                ErrorCode = 47
	ErrorCodeDuplicateName                       ErrorCode = 48
	ErrorCodeDuplicateObjectId                    ErrorCode = 49
	ErrorCodePropertyIsNotAnArray                ErrorCode = 50
	ErrorCodeNoAlarmsOfSpecifiedType              ErrorCode = 51
	ErrorCodeAbortBufferOverflow                 ErrorCode = 115
	ErrorCodeAbortInvalidApduInThisState         ErrorCode = 116
	ErrorCodeAbortPreemptedByHigherPriorityTask  ErrorCode = 117
	ErrorCodeAbortSegmentationNotSupported       ErrorCode = 118
	ErrorCodeAbortProprietary                    ErrorCode = 119
	ErrorCodeAbortOther                          ErrorCode = 120
	ErrorCodeInvalidTag                          ErrorCode = 121
	ErrorCodeNetworkDown                         ErrorCode = 122
	ErrorCodeRejectBufferOverflow                ErrorCode = 123
	ErrorCodeRejectInconsistentParameters        ErrorCode = 124
	ErrorCodeRejectInvalidParameterDataType      ErrorCode = 125
	ErrorCodeRejectInvalidTag                    ErrorCode = 126
	ErrorCodeRejectMissingRequiredParameter      ErrorCode = 127
	ErrorCodeRejectParameterOutOfRange           ErrorCode = 128
	ErrorCodeRejectTooManyArguments              ErrorCode = 129
	ErrorCodeRejectUndefinedEnumeration          ErrorCode = 130
	ErrorCodeRejectUnrecognizedService           ErrorCode = 131
	ErrorCodeRejectProprietary                   ErrorCode = 132
	ErrorCodeRejectOther                         ErrorCode = 133
	ErrorCodeUnknownDevice                       ErrorCode = 134
	ErrorCodeUnknownRoute                        ErrorCode = 135
	ErrorCodeValueTooLong                        ErrorCode = 136
	ErrorCodeAbortApduTooLong                     ErrorCode = 137
	ErrorCodeAbortApplicationExceededReplyTime   ErrorCode = 138
	ErrorCodeAbortOutOfResources                 ErrorCode = 139
	ErrorCodeAbortTsmTimeout                     ErrorCode = 140
	ErrorCodeAbortWindowSizeOutOfRange           ErrorCode = 141
	ErrorCodeListItemNotNumbered                 ErrorCode = 142
)

func (e ErrorCode) String() string {
	names := map[ErrorCode]string{
		ErrorCodeOther: "other", ErrorCodeUnknownObject: "unknown-object",
		ErrorCodeUnknownProperty: "unknown-property", ErrorCodeWriteAccessDenied: "write-access-denied",
		ErrorCodeReadAccessDenied: "read-access-denied", ErrorCodeInvalidDataType: "invalid-data-type",
		ErrorCodeInvalidArrayIndex: "invalid-array-index", ErrorCodeValueOutOfRange: "value-out-of-range",
		ErrorCodeUnknownDevice: "unknown-device", ErrorCodeUnknownSubscription: "unknown-subscription",
		ErrorCodeNoSpaceForObject: "no-space-for-object", ErrorCodeObjectDeletionNotPermitted: "object-deletion-not-permitted",
		ErrorCodeObjectIdentifierAlreadyExists: "object-identifier-already-exists",
		ErrorCodeDynamicCreationNotSupported:   "dynamic-creation-not-supported",
		ErrorCodeCovSubscriptionFailed:         "cov-subscription-failed",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("error-code(%d)", e)
}

// BACnetError is a structured protocol error (class, code) returned on an
// Error-PDU. It is produced by the server dispatcher and consumed by the
// client TSM; it is never swallowed internally.
type BACnetError struct {
	Class ErrorClass
	Code  ErrorCode
}

// NewBACnetError constructs a BACnetError.
func NewBACnetError(class ErrorClass, code ErrorCode) *BACnetError {
	return &BACnetError{Class: class, Code: code}
}

func (e *BACnetError) Error() string {
	return fmt.Sprintf("bacstack error: class=%s, code=%s", e.Class, e.Code)
}

func (e *BACnetError) Is(target error) bool {
	t, ok := target.(*BACnetError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// RejectReason is the reason half of a BACnet Reject-PDU.
type RejectReason uint8

const (
	RejectReasonOther                    RejectReason = 0
	RejectReasonBufferOverflow           RejectReason = 1
	RejectReasonInconsistentParameters   RejectReason = 2
	RejectReasonInvalidParameterDataType RejectReason = 3
	RejectReasonInvalidTag               RejectReason = 4
	RejectReasonMissingRequiredParameter RejectReason = 5
	RejectReasonParameterOutOfRange      RejectReason = 6
	RejectReasonTooManyArguments         RejectReason = 7
	RejectReasonUndefinedEnumeration     RejectReason = 8
	RejectReasonUnrecognizedService      RejectReason = 9
)

func (r RejectReason) String() string {
	names := map[RejectReason]string{
		RejectReasonOther: "other", RejectReasonBufferOverflow: "buffer-overflow",
		RejectReasonInconsistentParameters: "inconsistent-parameters", RejectReasonInvalidParameterDataType: "invalid-parameter-data-type",
		RejectReasonInvalidTag: "invalid-tag", RejectReasonMissingRequiredParameter: "missing-required-parameter",
		RejectReasonParameterOutOfRange: "parameter-out-of-range", RejectReasonTooManyArguments: "too-many-arguments",
		RejectReasonUndefinedEnumeration: "undefined-enumeration", RejectReasonUnrecognizedService: "unrecognized-service",
	}
	if name, ok := names[r]; ok {
		return name
	}
	return fmt.Sprintf("reject-reason(%d)", r)
}

// RejectError represents a BACnet Reject-PDU response to an invoke id.
type RejectError struct {
	InvokeID uint8
	Reason   RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("bacstack reject: invoke-id=%d, reason=%s", e.InvokeID, e.Reason)
}

// AbortReason is the reason half of a BACnet Abort-PDU.
type AbortReason uint8

const (
	AbortReasonOther                         AbortReason = 0
	AbortReasonBufferOverflow                AbortReason = 1
	AbortReasonInvalidAPDUInThisState        AbortReason = 2
	AbortReasonPreemptedByHigherPriorityTask AbortReason = 3
	AbortReasonSegmentationNotSupported      AbortReason = 4
	AbortReasonSecurityError                 AbortReason = 5
	AbortReasonInsufficientSecurity          AbortReason = 6
	AbortReasonWindowSizeOutOfRange          AbortReason = 7
	AbortReasonApplicationExceededReplyTime  AbortReason = 8
	AbortReasonOutOfResources                AbortReason = 9
	AbortReasonTSMTimeout                    AbortReason = 10
	AbortReasonAPDUTooLong                   AbortReason = 11
)

func (a AbortReason) String() string {
	names := map[AbortReason]string{
		AbortReasonOther: "other", AbortReasonBufferOverflow: "buffer-overflow",
		AbortReasonInvalidAPDUInThisState: "invalid-apdu-in-this-state",
		AbortReasonPreemptedByHigherPriorityTask: "preempted-by-higher-priority-task",
		AbortReasonSegmentationNotSupported: "segmentation-not-supported", AbortReasonSecurityError: "security-error",
		AbortReasonInsufficientSecurity: "insufficient-security", AbortReasonWindowSizeOutOfRange: "window-size-out-of-range",
		AbortReasonApplicationExceededReplyTime: "application-exceeded-reply-time", AbortReasonOutOfResources: "out-of-resources",
		AbortReasonTSMTimeout: "tsm-timeout", AbortReasonAPDUTooLong: "apdu-too-long",
	}
	if name, ok := names[a]; ok {
		return name
	}
	return fmt.Sprintf("abort-reason(%d)", a)
}

// AbortError represents a BACnet Abort-PDU. Server is true when the
// device that sent this APDU was the server side of the transaction.
type AbortError struct {
	InvokeID uint8
	Server   bool
	Reason   AbortReason
}

func (e *AbortError) Error() string {
	origin := "client"
	if e.Server {
		origin = "server"
	}
	return fmt.Sprintf("bacstack abort: invoke-id=%d, origin=%s, reason=%s", e.InvokeID, origin, e.Reason)
}

// IsTimeout reports whether err is (or wraps) ErrTimeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsDeviceNotFound reports whether err indicates the target device is unknown.
func IsDeviceNotFound(err error) bool {
	if errors.Is(err, ErrDeviceNotFound) {
		return true
	}
	var bacErr *BACnetError
	if errors.As(err, &bacErr) {
		return bacErr.Code == ErrorCodeUnknownDevice || bacErr.Code == ErrorCodeUnknownObject
	}
	return false
}

// IsPropertyNotFound reports whether err indicates an unknown property.
func IsPropertyNotFound(err error) bool {
	if errors.Is(err, ErrPropertyNotFound) {
		return true
	}
	var bacErr *BACnetError
	if errors.As(err, &bacErr) {
		return bacErr.Code == ErrorCodeUnknownProperty
	}
	return false
}

// IsAccessDenied reports whether err indicates a read/write access violation.
func IsAccessDenied(err error) bool {
	var bacErr *BACnetError
	if errors.As(err, &bacErr) {
		return bacErr.Code == ErrorCodeReadAccessDenied || bacErr.Code == ErrorCodeWriteAccessDenied
	}
	return false
}

// IsSegmentationNotSupported reports whether err is an Abort with reason
// SEGMENTATION_NOT_SUPPORTED, the trigger for the client façade's
// element-by-element fallback (spec §8 scenario 5).
func IsSegmentationNotSupported(err error) bool {
	if errors.Is(err, ErrSegmentationNotSupported) {
		return true
	}
	var abortErr *AbortError
	if errors.As(err, &abortErr) {
		return abortErr.Reason == AbortReasonSegmentationNotSupported
	}
	return false
}
