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

package services

import (
	"fmt"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// AtomicReadFileRequest is the stream-access form of AtomicReadFile: this
// implementation does not model record-access files.
type AtomicReadFileRequest struct {
	File           bacstack.ObjectIdentifier
	StartPosition  int32
	RequestedCount uint32
}

// EncodeAtomicReadFileRequest encodes a stream-access AtomicReadFile request.
func EncodeAtomicReadFileRequest(req AtomicReadFileRequest) []byte {
	var out []byte
	out = append(out, encoding.EncodeApplicationObjectIdentifier(req.File)...)
	out = append(out, encoding.EncodeOpeningTag(0)...)
	out = append(out, encoding.EncodeApplicationSigned(req.StartPosition)...)
	out = append(out, encoding.EncodeApplicationUnsigned(req.RequestedCount)...)
	out = append(out, encoding.EncodeClosingTag(0)...)
	return out
}

// DecodeAtomicReadFileRequest parses a stream-access AtomicReadFile request.
func DecodeAtomicReadFileRequest(buf []byte) (AtomicReadFileRequest, error) {
	file, next, err := encoding.DecodeApplicationValue(buf, 0)
	if err != nil {
		return AtomicReadFileRequest{}, fmt.Errorf("atomic-read-file: file-identifier: %w", err)
	}
	if !isOpening(buf, next, 0) {
		return AtomicReadFileRequest{}, fmt.Errorf("%w: expected opening tag 0 for stream access", bacstack.ErrMalformedTag)
	}
	_, next, err = encoding.DecodeTag(buf, next)
	if err != nil {
		return AtomicReadFileRequest{}, err
	}
	start, next, err := encoding.DecodeApplicationValue(buf, next)
	if err != nil {
		return AtomicReadFileRequest{}, fmt.Errorf("atomic-read-file: start-position: %w", err)
	}
	count, _, err := encoding.DecodeApplicationValue(buf, next)
	if err != nil {
		return AtomicReadFileRequest{}, fmt.Errorf("atomic-read-file: requested-count: %w", err)
	}
	return AtomicReadFileRequest{File: file.ObjectID, StartPosition: start.Signed, RequestedCount: count.Unsigned}, nil
}

// AtomicReadFileAck is the stream-access AtomicReadFile response.
type AtomicReadFileAck struct {
	EndOfFile bool
	Data      []byte
}

// EncodeAtomicReadFileAck encodes a stream-access AtomicReadFile ACK.
func EncodeAtomicReadFileAck(ack AtomicReadFileAck) []byte {
	var out []byte
	out = append(out, encoding.EncodeApplicationBoolean(ack.EndOfFile)...)
	out = append(out, encoding.EncodeOpeningTag(0)...)
	out = append(out, encoding.EncodeApplicationOctetString(ack.Data)...)
	out = append(out, encoding.EncodeClosingTag(0)...)
	return out
}

// DecodeAtomicReadFileAck parses a stream-access AtomicReadFile ACK.
func DecodeAtomicReadFileAck(buf []byte) (AtomicReadFileAck, error) {
	eof, next, err := encoding.DecodeApplicationValue(buf, 0)
	if err != nil {
		return AtomicReadFileAck{}, fmt.Errorf("atomic-read-file-ack: end-of-file: %w", err)
	}
	if !isOpening(buf, next, 0) {
		return AtomicReadFileAck{}, fmt.Errorf("%w: expected opening tag 0 for stream access", bacstack.ErrMalformedTag)
	}
	_, next, err = encoding.DecodeTag(buf, next)
	if err != nil {
		return AtomicReadFileAck{}, err
	}
	data, _, err := encoding.DecodeApplicationValue(buf, next)
	if err != nil {
		return AtomicReadFileAck{}, fmt.Errorf("atomic-read-file-ack: file-data: %w", err)
	}
	return AtomicReadFileAck{EndOfFile: eof.Boolean, Data: data.Octets}, nil
}

// AtomicWriteFileRequest is the stream-access form of AtomicWriteFile.
type AtomicWriteFileRequest struct {
	File          bacstack.ObjectIdentifier
	StartPosition int32
	Data          []byte
}

// EncodeAtomicWriteFileRequest encodes a stream-access AtomicWriteFile request.
func EncodeAtomicWriteFileRequest(req AtomicWriteFileRequest) []byte {
	var out []byte
	out = append(out, encoding.EncodeApplicationObjectIdentifier(req.File)...)
	out = append(out, encoding.EncodeOpeningTag(0)...)
	out = append(out, encoding.EncodeApplicationSigned(req.StartPosition)...)
	out = append(out, encoding.EncodeApplicationOctetString(req.Data)...)
	out = append(out, encoding.EncodeClosingTag(0)...)
	return out
}

// DecodeAtomicWriteFileRequest parses a stream-access AtomicWriteFile request.
func DecodeAtomicWriteFileRequest(buf []byte) (AtomicWriteFileRequest, error) {
	file, next, err := encoding.DecodeApplicationValue(buf, 0)
	if err != nil {
		return AtomicWriteFileRequest{}, fmt.Errorf("atomic-write-file: file-identifier: %w", err)
	}
	if !isOpening(buf, next, 0) {
		return AtomicWriteFileRequest{}, fmt.Errorf("%w: expected opening tag 0 for stream access", bacstack.ErrMalformedTag)
	}
	_, next, err = encoding.DecodeTag(buf, next)
	if err != nil {
		return AtomicWriteFileRequest{}, err
	}
	start, next, err := encoding.DecodeApplicationValue(buf, next)
	if err != nil {
		return AtomicWriteFileRequest{}, fmt.Errorf("atomic-write-file: start-position: %w", err)
	}
	data, _, err := encoding.DecodeApplicationValue(buf, next)
	if err != nil {
		return AtomicWriteFileRequest{}, fmt.Errorf("atomic-write-file: file-data: %w", err)
	}
	return AtomicWriteFileRequest{File: file.ObjectID, StartPosition: start.Signed, Data: data.Octets}, nil
}

// EncodeAtomicWriteFileAck encodes a stream-access AtomicWriteFile ACK: the
// start position at which the data was written.
func EncodeAtomicWriteFileAck(startPosition int32) []byte {
	return encoding.EncodeApplicationSigned(startPosition)
}

// DecodeAtomicWriteFileAck parses a stream-access AtomicWriteFile ACK.
func DecodeAtomicWriteFileAck(buf []byte) (int32, error) {
	v, _, err := encoding.DecodeApplicationValue(buf, 0)
	if err != nil {
		return 0, fmt.Errorf("atomic-write-file-ack: %w", err)
	}
	return v.Signed, nil
}
