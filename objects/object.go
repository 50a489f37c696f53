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

package objects

import (
	"sync"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// PriorityArraySize is the fixed number of priority slots (spec §4.8).
const PriorityArraySize = 16

// Object is one schema-backed instance in the database: a property map
// plus, for commandable classes, a 16-slot priority array behind
// present_value.
type Object struct {
	mu     sync.RWMutex
	schema ClassSchema
	values map[bacstack.PropertyIdentifier]encoding.Value

	// priority holds the 16 command slots, nil meaning relinquished. Only
	// populated for classes whose present_value schema entry is
	// Commandable.
	priority [PriorityArraySize]*encoding.Value

	// arrays holds every other Array-schema property (object_list,
	// subordinate_list, recipient_list, date_list, log_buffer, ...),
	// since a plain encoding.Value has no slice-of-Value arm.
	arrays map[bacstack.PropertyIdentifier][]encoding.Value
}

// New constructs an Object of the given type with default values seeded
// from name/instance. Callers typically follow with WriteProperty calls
// for additional initial state.
func New(schema ClassSchema, oid bacstack.ObjectIdentifier, name string) *Object {
	o := &Object{
		schema: schema,
		values: make(map[bacstack.PropertyIdentifier]encoding.Value),
		arrays: make(map[bacstack.PropertyIdentifier][]encoding.Value),
	}
	o.values[bacstack.PropertyObjectIdentifier] = encoding.ObjectIdentifierValue(oid)
	o.values[bacstack.PropertyObjectName] = encoding.CharacterStringValue(name)
	o.values[bacstack.PropertyObjectType] = encoding.EnumeratedValue(uint32(oid.Type))
	o.values[bacstack.PropertyStatusFlags] = encoding.BitStringValue(encoding.NewBitString(false, false, false, false))
	o.values[bacstack.PropertyOutOfService] = encoding.BooleanValue(false)

	if pv, ok := schema.Properties[bacstack.PropertyPresentValue]; ok {
		if pv.Commandable {
			def := zeroValueForTag(pv.Tag)
			o.values[bacstack.PropertyRelinquishDefault] = def
			o.recomputePresentValueLocked()
		} else {
			o.values[bacstack.PropertyPresentValue] = zeroValueForTag(pv.Tag)
		}
	}
	for propID, s := range schema.Properties {
		if s.Array && propID != bacstack.PropertyPriorityArray {
			o.arrays[propID] = nil
		}
	}
	return o
}

func zeroValueForTag(tag encoding.ApplicationTag) encoding.Value {
	switch tag {
	case encoding.TagReal:
		return encoding.RealValue(0)
	case encoding.TagUnsignedInt:
		return encoding.UnsignedValue(0)
	case encoding.TagEnumerated:
		return encoding.EnumeratedValue(0)
	case encoding.TagBoolean:
		return encoding.BooleanValue(false)
	default:
		return encoding.NullValue()
	}
}

// Identifier returns the object's ObjectIdentifier.
func (o *Object) Identifier() bacstack.ObjectIdentifier {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.values[bacstack.PropertyObjectIdentifier].ObjectID
}

// Schema returns the object's class schema.
func (o *Object) Schema() ClassSchema {
	return o.schema
}

// ReadProperty reads a property value, per spec §4.8. arrayIndex selects
// one PriorityArray slot (index 1..16) or one element of an Array-schema
// property (index 0 returns the element count); a nil index reads the
// property's single stored value. Whole Array-schema properties are read
// with ReadPropertyArray.
func (o *Object) ReadProperty(propID bacstack.PropertyIdentifier, arrayIndex *int) (encoding.Value, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if _, known := o.schema.Properties[propID]; !known {
		return encoding.Value{}, bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeUnknownProperty)
	}

	if propID == bacstack.PropertyPriorityArray && o.hasPriorityArrayLocked() {
		if arrayIndex != nil {
			idx := *arrayIndex
			if idx < 1 || idx > PriorityArraySize {
				return encoding.Value{}, bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeInvalidArrayIndex)
			}
			slot := o.priority[idx-1]
			if slot == nil {
				return encoding.NullValue(), nil
			}
			return *slot, nil
		}
	}

	if arr, isArray := o.arrays[propID]; isArray && arrayIndex != nil {
		idx := *arrayIndex
		if idx == 0 {
			return encoding.UnsignedValue(uint32(len(arr))), nil
		}
		if idx < 1 || idx > len(arr) {
			return encoding.Value{}, bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeInvalidArrayIndex)
		}
		return arr[idx-1], nil
	}

	v, ok := o.values[propID]
	if !ok {
		return encoding.Value{}, bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeUnknownProperty)
	}
	return v, nil
}

// ReadPropertyArray reads every element of an Array-schema property (spec
// §4.8's SEQUENCE OF properties: object_list, subordinate_list,
// recipient_list, date_list, ...). The priority array is read through
// ReadProperty instead, since its 16 slots are stored separately.
func (o *Object) ReadPropertyArray(propID bacstack.PropertyIdentifier) ([]encoding.Value, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	schema, known := o.schema.Properties[propID]
	if !known || !schema.Array || propID == bacstack.PropertyPriorityArray {
		return nil, bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeUnknownProperty)
	}
	return append([]encoding.Value(nil), o.arrays[propID]...), nil
}

// SetSystemProperty writes propID directly, bypassing the schema's
// Writable check — for properties the system itself maintains rather than
// ones a client writes (object_list membership, protocol parameters,
// system_status).
func (o *Object) SetSystemProperty(propID bacstack.PropertyIdentifier, value encoding.Value) {
	o.mu.Lock()
	o.values[propID] = value
	o.mu.Unlock()
}

// SetSystemPropertyArray replaces the full element list of an Array-schema
// property the system maintains (object_list, subordinate_list).
func (o *Object) SetSystemPropertyArray(propID bacstack.PropertyIdentifier, values []encoding.Value) {
	o.mu.Lock()
	o.arrays[propID] = append([]encoding.Value(nil), values...)
	o.mu.Unlock()
}

// WriteProperty applies the write-access rules from spec §4.8: read-only
// rejection, unknown-property rejection, priority-array commanding, and a
// type check against the schema.
func (o *Object) WriteProperty(propID bacstack.PropertyIdentifier, value encoding.Value, priority *uint8, arrayIndex *int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	schema, known := o.schema.Properties[propID]
	if !known {
		return bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeUnknownProperty)
	}
	if !schema.Writable {
		return bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeWriteAccessDenied)
	}
	if !value.Null() && value.Tag != schema.Tag {
		return bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeInvalidDataType)
	}

	if schema.Array && propID != bacstack.PropertyPriorityArray {
		if arrayIndex == nil || *arrayIndex < 1 {
			return bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeInvalidArrayIndex)
		}
		idx := *arrayIndex
		for len(o.arrays[propID]) < idx {
			o.arrays[propID] = append(o.arrays[propID], encoding.NullValue())
		}
		o.arrays[propID][idx-1] = value
		return nil
	}

	if propID == bacstack.PropertyPresentValue && schema.Commandable {
		return o.writeCommandableLocked(value, priority)
	}
	if propID == bacstack.PropertyRelinquishDefault && schema.Commandable {
		o.values[propID] = value
		o.recomputePresentValueLocked()
		return nil
	}

	o.values[propID] = value
	return nil
}

func (o *Object) hasPriorityArrayLocked() bool {
	pv, ok := o.schema.Properties[bacstack.PropertyPresentValue]
	return ok && pv.Commandable
}

// writeCommandableLocked implements spec §4.8 rule 3: a write with a
// priority slot updates that slot; Null relinquishes it; present_value is
// recomputed as the highest-priority non-null slot, or relinquish_default.
func (o *Object) writeCommandableLocked(value encoding.Value, priority *uint8) error {
	slot := uint8(PriorityArraySize) // default to lowest priority (16) when unspecified
	if priority != nil {
		slot = *priority
	}
	if slot < 1 || slot > PriorityArraySize {
		return bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeValueOutOfRange)
	}

	if value.Null() {
		o.priority[slot-1] = nil
	} else {
		v := value
		o.priority[slot-1] = &v
	}
	o.recomputePresentValueLocked()
	return nil
}

// recomputePresentValueLocked sets present_value to the highest-priority
// (lowest slot number) non-null entry, falling back to relinquish_default.
func (o *Object) recomputePresentValueLocked() {
	for _, slot := range o.priority {
		if slot != nil {
			o.values[bacstack.PropertyPresentValue] = *slot
			return
		}
	}
	if def, ok := o.values[bacstack.PropertyRelinquishDefault]; ok {
		o.values[bacstack.PropertyPresentValue] = def
	}
}

// PriorityArraySnapshot returns a copy of the 16 slots for encoding a
// PriorityArray read, nil entries representing relinquished slots.
func (o *Object) PriorityArraySnapshot() [PriorityArraySize]*encoding.Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out [PriorityArraySize]*encoding.Value
	for i, slot := range o.priority {
		if slot != nil {
			v := *slot
			out[i] = &v
		}
	}
	return out
}

// SetStatusFlags updates the standard status-flags property (spec §4.10
// event engine keeps this consistent with event_state/reliability).
func (o *Object) SetStatusFlags(flags bacstack.StatusFlags) {
	bits := encoding.NewBitString(flags.InAlarm, flags.Fault, flags.Overridden, flags.OutOfService)
	o.mu.Lock()
	o.values[bacstack.PropertyStatusFlags] = encoding.BitStringValue(bits)
	o.mu.Unlock()
}
