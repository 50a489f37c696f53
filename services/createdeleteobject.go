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
	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// CreateObjectRequest is the decoded body of a CreateObject request. Only
// the object-identifier form of ObjectSpecifier (tag 1) is supported; the
// object-type form (tag 0, "create the next free instance") is rejected
// with dynamic-creation-not-supported, since this database never invents
// an instance number on its own.
type CreateObjectRequest struct {
	Object        bacstack.ObjectIdentifier
	InitialValues []WriteValue
}

// EncodeCreateObjectRequest builds the service payload for CreateObject.
func EncodeCreateObjectRequest(r CreateObjectRequest) []byte {
	out := encoding.EncodeOpeningTag(0)
	out = append(out, encoding.EncodeContextObjectIdentifier(1, r.Object)...)
	out = append(out, encoding.EncodeClosingTag(0)...)
	if len(r.InitialValues) > 0 {
		out = append(out, encoding.EncodeOpeningTag(1)...)
		for _, iv := range r.InitialValues {
			out = append(out, encoding.EncodeContextEnumerated(0, uint32(iv.Property))...)
			out = append(out, encoding.EncodeOpeningTag(2)...)
			out = append(out, encoding.EncodeApplicationValue(iv.Value)...)
			out = append(out, encoding.EncodeClosingTag(2)...)
		}
		out = append(out, encoding.EncodeClosingTag(1)...)
	}
	return out
}

// DecodeCreateObjectRequest parses a CreateObject request payload.
func DecodeCreateObjectRequest(buf []byte) (CreateObjectRequest, error) {
	meta, offset, err := encoding.DecodeTag(buf, 0)
	if err != nil {
		return CreateObjectRequest{}, err
	}
	if !meta.Opening || meta.Number != 0 {
		return CreateObjectRequest{}, bacstack.ErrMalformedTag
	}

	inner, offset, err := encoding.DecodeTag(buf, offset)
	if err != nil {
		return CreateObjectRequest{}, err
	}
	if inner.Class != encoding.TagClassContext || inner.Number != 1 {
		return CreateObjectRequest{}, bacstack.NewBACnetError(bacstack.ErrorClassObject, bacstack.ErrorCodeDynamicCreationNotSupported)
	}
	oid, err := encoding.DecodeObjectIdentifier(buf[offset : offset+int(inner.Length)])
	if err != nil {
		return CreateObjectRequest{}, err
	}
	offset += int(inner.Length)

	if meta, next, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 0 {
		offset = next
	}

	req := CreateObjectRequest{Object: oid}
	if offset >= len(buf) {
		return req, nil
	}
	if meta, next, err := encoding.DecodeTag(buf, offset); err == nil && meta.Opening && meta.Number == 1 {
		offset = next
		for {
			if meta, next, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 1 {
				offset = next
				break
			}
			propID, next, err := decodeContextEnumerated(buf, offset, 0)
			if err != nil {
				return CreateObjectRequest{}, err
			}
			offset = next

			tag, next, err := encoding.DecodeTag(buf, offset)
			if err != nil {
				return CreateObjectRequest{}, err
			}
			if !tag.Opening || tag.Number != 2 {
				return CreateObjectRequest{}, bacstack.ErrMalformedTag
			}
			value, next, err := encoding.DecodeApplicationValue(buf, next)
			if err != nil {
				return CreateObjectRequest{}, err
			}
			offset = next
			if meta, next2, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 2 {
				offset = next2
			}
			req.InitialValues = append(req.InitialValues, WriteValue{Property: bacstack.PropertyIdentifier(propID), Value: value})
		}
	}
	return req, nil
}

// EncodeCreateObjectAck builds the CreateObject-ACK payload: the created
// object's identifier, tag 0.
func EncodeCreateObjectAck(oid bacstack.ObjectIdentifier) []byte {
	return encoding.EncodeContextObjectIdentifier(0, oid)
}

// DecodeCreateObjectAck parses a CreateObject-ACK payload.
func DecodeCreateObjectAck(buf []byte) (bacstack.ObjectIdentifier, error) {
	oid, _, err := decodeContextObjectIdentifier(buf, 0, 0)
	return oid, err
}

// DeleteObjectRequest is the decoded body of a DeleteObject request.
type DeleteObjectRequest struct {
	Object bacstack.ObjectIdentifier
}

// EncodeDeleteObjectRequest builds the service payload for DeleteObject.
func EncodeDeleteObjectRequest(r DeleteObjectRequest) []byte {
	return encoding.EncodeContextObjectIdentifier(0, r.Object)
}

// DecodeDeleteObjectRequest parses a DeleteObject request payload.
func DecodeDeleteObjectRequest(buf []byte) (DeleteObjectRequest, error) {
	oid, _, err := decodeContextObjectIdentifier(buf, 0, 0)
	if err != nil {
		return DeleteObjectRequest{}, err
	}
	return DeleteObjectRequest{Object: oid}, nil
}
