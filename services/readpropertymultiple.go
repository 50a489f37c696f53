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
	"errors"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
	"github.com/scadalynx/bacstack/objects"
)

// PropertyReference names one property (and optional array index) to read
// within a ReadAccessSpecification.
type PropertyReference struct {
	Property   bacstack.PropertyIdentifier
	ArrayIndex *int
}

// ReadAccessSpec is one object's worth of a ReadPropertyMultiple request:
// an object identifier plus the properties requested on it.
type ReadAccessSpec struct {
	Object     bacstack.ObjectIdentifier
	Properties []PropertyReference
}

// EncodeReadPropertyMultipleRequest builds the service payload: a flat
// sequence of ReadAccessSpecification entries, each an object-identifier
// context tag 0 followed by its property-reference list wrapped in
// opening/closing tag 1.
func EncodeReadPropertyMultipleRequest(specs []ReadAccessSpec) []byte {
	var out []byte
	for _, spec := range specs {
		out = append(out, encoding.EncodeContextObjectIdentifier(0, spec.Object)...)
		out = append(out, encoding.EncodeOpeningTag(1)...)
		for _, p := range spec.Properties {
			out = append(out, encoding.EncodeContextEnumerated(0, uint32(p.Property))...)
			if p.ArrayIndex != nil {
				out = append(out, encoding.EncodeContextUnsigned(1, uint32(*p.ArrayIndex))...)
			}
		}
		out = append(out, encoding.EncodeClosingTag(1)...)
	}
	return out
}

// DecodeReadPropertyMultipleRequest parses the full sequence of
// ReadAccessSpecification entries.
func DecodeReadPropertyMultipleRequest(buf []byte) ([]ReadAccessSpec, error) {
	var specs []ReadAccessSpec
	offset := 0
	for offset < len(buf) {
		oid, next, err := decodeContextObjectIdentifier(buf, offset, 0)
		if err != nil {
			return nil, err
		}
		offset = next

		meta, next, err := encoding.DecodeTag(buf, offset)
		if err != nil {
			return nil, err
		}
		if !meta.Opening || meta.Number != 1 {
			return nil, bacstack.ErrMalformedTag
		}
		offset = next

		var refs []PropertyReference
		for {
			if meta, next, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 1 {
				offset = next
				break
			}
			propID, next, err := decodeContextEnumerated(buf, offset, 0)
			if err != nil {
				return nil, err
			}
			offset = next
			ref := PropertyReference{Property: bacstack.PropertyIdentifier(propID)}
			if offset < len(buf) && encoding.IsContextSpecific(buf, offset, 1) && !isClosing(buf, offset, 1) {
				idx, next, err := decodeContextUnsigned(buf, offset, 1)
				if err != nil {
					return nil, err
				}
				i := int(idx)
				ref.ArrayIndex = &i
				offset = next
			}
			refs = append(refs, ref)
		}
		specs = append(specs, ReadAccessSpec{Object: oid, Properties: refs})
	}
	return specs, nil
}

// PropertyResult is one property's outcome within a ReadAccessResult: a
// successful value, or an embedded error (spec §4.8: a failure on one
// property does not fail the whole request).
type PropertyResult struct {
	Property   bacstack.PropertyIdentifier
	ArrayIndex *int
	Value      encoding.Value
	Err        *bacstack.BACnetError
}

// ReadAccessResult is one object's worth of a ReadPropertyMultiple-ACK.
type ReadAccessResult struct {
	Object  bacstack.ObjectIdentifier
	Results []PropertyResult
}

// BuildReadAccessResults evaluates a ReadPropertyMultiple request against
// db, producing one ReadAccessResult per requested object. A missing
// object yields a single UNKNOWN_OBJECT result entry, mirroring how real
// BACnet stacks report object-level failures within the ACK rather than
// aborting the whole response.
func BuildReadAccessResults(db *objects.Database, specs []ReadAccessSpec) []ReadAccessResult {
	out := make([]ReadAccessResult, 0, len(specs))
	for _, spec := range specs {
		obj := db.Get(spec.Object)
		var results []PropertyResult
		if obj == nil {
			bacErr := bacstack.NewBACnetError(bacstack.ErrorClassObject, bacstack.ErrorCodeUnknownObject)
			results = append(results, PropertyResult{Err: bacErr})
			out = append(out, ReadAccessResult{Object: spec.Object, Results: results})
			continue
		}
		for _, ref := range spec.Properties {
			v, err := obj.ReadProperty(ref.Property, ref.ArrayIndex)
			if err != nil {
				var bacErr *bacstack.BACnetError
				if !errors.As(err, &bacErr) {
					bacErr = bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeOther)
				}
				results = append(results, PropertyResult{Property: ref.Property, ArrayIndex: ref.ArrayIndex, Err: bacErr})
				continue
			}
			results = append(results, PropertyResult{Property: ref.Property, ArrayIndex: ref.ArrayIndex, Value: v})
		}
		out = append(out, ReadAccessResult{Object: spec.Object, Results: results})
	}
	return out
}

// DecodeReadPropertyMultipleAck parses an RPM-ACK payload back into
// ReadAccessResults, the client-side counterpart of
// EncodeReadPropertyMultipleAck.
func DecodeReadPropertyMultipleAck(buf []byte) ([]ReadAccessResult, error) {
	var out []ReadAccessResult
	offset := 0
	for offset < len(buf) {
		oid, next, err := decodeContextObjectIdentifier(buf, offset, 0)
		if err != nil {
			return nil, err
		}
		offset = next

		meta, next, err := encoding.DecodeTag(buf, offset)
		if err != nil {
			return nil, err
		}
		if !meta.Opening || meta.Number != 1 {
			return nil, bacstack.ErrMalformedTag
		}
		offset = next

		var results []PropertyResult
		for {
			if meta, next, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 1 {
				offset = next
				break
			}
			propID, next, err := decodeContextEnumerated(buf, offset, 2)
			if err != nil {
				return nil, err
			}
			offset = next

			pr := PropertyResult{Property: bacstack.PropertyIdentifier(propID)}
			if offset < len(buf) && encoding.IsContextSpecific(buf, offset, 3) {
				idx, next, err := decodeContextUnsigned(buf, offset, 3)
				if err != nil {
					return nil, err
				}
				i := int(idx)
				pr.ArrayIndex = &i
				offset = next
			}

			meta, next, err = encoding.DecodeTag(buf, offset)
			if err != nil {
				return nil, err
			}
			switch {
			case meta.Opening && meta.Number == 4:
				value, next, err := encoding.DecodeApplicationValue(buf, next)
				if err != nil {
					return nil, err
				}
				pr.Value = value
				offset = next
				if meta, next2, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 4 {
					offset = next2
				}
			case meta.Opening && meta.Number == 5:
				class, next, err := decodeContextEnumerated(buf, next, 0)
				if err != nil {
					return nil, err
				}
				code, next, err := decodeContextEnumerated(buf, next, 1)
				if err != nil {
					return nil, err
				}
				pr.Err = bacstack.NewBACnetError(bacstack.ErrorClass(class), bacstack.ErrorCode(code))
				offset = next
				if meta, next2, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 5 {
					offset = next2
				}
			default:
				return nil, bacstack.ErrMalformedTag
			}
			results = append(results, pr)
		}
		out = append(out, ReadAccessResult{Object: oid, Results: results})
	}
	return out, nil
}

// EncodeReadPropertyMultipleAck builds the RPM-ACK payload.
func EncodeReadPropertyMultipleAck(results []ReadAccessResult) []byte {
	var out []byte
	for _, r := range results {
		out = append(out, encoding.EncodeContextObjectIdentifier(0, r.Object)...)
		out = append(out, encoding.EncodeOpeningTag(1)...)
		for _, pr := range r.Results {
			out = append(out, encoding.EncodeContextEnumerated(2, uint32(pr.Property))...)
			if pr.ArrayIndex != nil {
				out = append(out, encoding.EncodeContextUnsigned(3, uint32(*pr.ArrayIndex))...)
			}
			if pr.Err != nil {
				out = append(out, encoding.EncodeOpeningTag(5)...)
				out = append(out, encoding.EncodeContextEnumerated(0, uint32(pr.Err.Class))...)
				out = append(out, encoding.EncodeContextEnumerated(1, uint32(pr.Err.Code))...)
				out = append(out, encoding.EncodeClosingTag(5)...)
				continue
			}
			out = append(out, encoding.EncodeOpeningTag(4)...)
			out = append(out, encoding.EncodeApplicationValue(pr.Value)...)
			out = append(out, encoding.EncodeClosingTag(4)...)
		}
		out = append(out, encoding.EncodeClosingTag(1)...)
	}
	return out
}
