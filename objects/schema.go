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

// Package objects implements the object database: a schema-driven Object
// type with a 16-slot priority array for commandable properties, and the
// in-memory store the service dispatcher reads and writes through
// (spec §4.8).
package objects

import (
	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// PropertySchema describes one property slot a class of object supports.
type PropertySchema struct {
	Tag          encoding.ApplicationTag
	Required     bool
	Writable     bool
	Commandable  bool // participates in the priority array via present_value
	Array        bool
}

// ClassSchema is the set of properties one ObjectType supports.
type ClassSchema struct {
	Type       bacstack.ObjectType
	Properties map[bacstack.PropertyIdentifier]PropertySchema
}

func commonSchema(extra map[bacstack.PropertyIdentifier]PropertySchema) map[bacstack.PropertyIdentifier]PropertySchema {
	base := map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyObjectIdentifier: {Tag: encoding.TagObjectID, Required: true},
		bacstack.PropertyObjectName:       {Tag: encoding.TagCharacterString, Required: true, Writable: true},
		bacstack.PropertyObjectType:       {Tag: encoding.TagEnumerated, Required: true},
		bacstack.PropertyDescription:      {Tag: encoding.TagCharacterString, Writable: true},
		bacstack.PropertyStatusFlags:      {Tag: encoding.TagBitString, Required: true},
		bacstack.PropertyReliability:      {Tag: encoding.TagEnumerated},
		bacstack.PropertyOutOfService:     {Tag: encoding.TagBoolean, Required: true, Writable: true},
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}

func commandableSchema(valueTag encoding.ApplicationTag, units bool, extra map[bacstack.PropertyIdentifier]PropertySchema) map[bacstack.PropertyIdentifier]PropertySchema {
	base := commonSchema(map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyPresentValue:      {Tag: valueTag, Required: true, Writable: true, Commandable: true},
		bacstack.PropertyPriorityArray:     {Tag: valueTag, Array: true},
		bacstack.PropertyRelinquishDefault: {Tag: valueTag, Writable: true},
	})
	if units {
		base[bacstack.PropertyUnits] = PropertySchema{Tag: encoding.TagEnumerated, Writable: true}
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}

func monitoredSchema(valueTag encoding.ApplicationTag, units bool, extra map[bacstack.PropertyIdentifier]PropertySchema) map[bacstack.PropertyIdentifier]PropertySchema {
	base := commonSchema(map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyPresentValue: {Tag: valueTag, Required: true},
	})
	if units {
		base[bacstack.PropertyUnits] = PropertySchema{Tag: encoding.TagEnumerated}
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// eventSchema adds the intrinsic-reporting properties shared by algorithmic
// event-capable objects (spec §4.10).
func eventSchema(base map[bacstack.PropertyIdentifier]PropertySchema) map[bacstack.PropertyIdentifier]PropertySchema {
	base[bacstack.PropertyEventState] = PropertySchema{Tag: encoding.TagEnumerated, Required: true}
	base[bacstack.PropertyNotificationClass] = PropertySchema{Tag: encoding.TagUnsignedInt, Writable: true}
	base[bacstack.PropertyEventEnable] = PropertySchema{Tag: encoding.TagBitString, Writable: true}
	base[bacstack.PropertyAckedTransitions] = PropertySchema{Tag: encoding.TagBitString}
	base[bacstack.PropertyNotifyType] = PropertySchema{Tag: encoding.TagEnumerated, Writable: true}
	base[bacstack.PropertyTimeDelay] = PropertySchema{Tag: encoding.TagUnsignedInt, Writable: true}
	base[bacstack.PropertyHighLimit] = PropertySchema{Tag: encoding.TagReal, Writable: true}
	base[bacstack.PropertyLowLimit] = PropertySchema{Tag: encoding.TagReal, Writable: true}
	base[bacstack.PropertyDeadband] = PropertySchema{Tag: encoding.TagReal, Writable: true}
	base[bacstack.PropertyLimitEnable] = PropertySchema{Tag: encoding.TagBitString, Writable: true}
	return base
}

// defaultSchemas covers the representative subset of object types this
// implementation models fully; unmodeled types are still addressable
// ObjectIdentifiers but carry no property schema.
func defaultSchemas() map[bacstack.ObjectType]ClassSchema {
	schemas := make(map[bacstack.ObjectType]ClassSchema)

	add := func(t bacstack.ObjectType, props map[bacstack.PropertyIdentifier]PropertySchema) {
		schemas[t] = ClassSchema{Type: t, Properties: props}
	}

	add(bacstack.ObjectTypeAnalogInput, eventSchema(monitoredSchema(encoding.TagReal, true, nil)))
	add(bacstack.ObjectTypeAnalogOutput, eventSchema(commandableSchema(encoding.TagReal, true, nil)))
	add(bacstack.ObjectTypeAnalogValue, eventSchema(commandableSchema(encoding.TagReal, true, nil)))
	add(bacstack.ObjectTypeBinaryInput, eventSchema(monitoredSchema(encoding.TagEnumerated, false, map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyPolarity: {Tag: encoding.TagEnumerated},
	})))
	add(bacstack.ObjectTypeBinaryOutput, eventSchema(commandableSchema(encoding.TagEnumerated, false, map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyPolarity: {Tag: encoding.TagEnumerated},
	})))
	add(bacstack.ObjectTypeBinaryValue, eventSchema(commandableSchema(encoding.TagEnumerated, false, nil)))
	add(bacstack.ObjectTypeMultiStateInput, eventSchema(monitoredSchema(encoding.TagUnsignedInt, false, map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyNumberOfStates: {Tag: encoding.TagUnsignedInt, Required: true},
	})))
	add(bacstack.ObjectTypeMultiStateOutput, eventSchema(commandableSchema(encoding.TagUnsignedInt, false, map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyNumberOfStates: {Tag: encoding.TagUnsignedInt, Required: true},
	})))
	add(bacstack.ObjectTypeMultiStateValue, eventSchema(commandableSchema(encoding.TagUnsignedInt, false, map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyNumberOfStates: {Tag: encoding.TagUnsignedInt, Required: true},
	})))
	add(bacstack.ObjectTypeDevice, commonSchema(map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyObjectList:             {Tag: encoding.TagObjectID, Array: true, Required: true},
		bacstack.PropertySystemStatus:           {Tag: encoding.TagEnumerated, Required: true},
		bacstack.PropertyVendorName:             {Tag: encoding.TagCharacterString},
		bacstack.PropertyVendorIdentifier:       {Tag: encoding.TagUnsignedInt},
		bacstack.PropertyModelName:              {Tag: encoding.TagCharacterString},
		bacstack.PropertyFirmwareRevision:       {Tag: encoding.TagCharacterString},
		bacstack.PropertyApplicationSoftwareVersion: {Tag: encoding.TagCharacterString},
		bacstack.PropertyProtocolVersion:        {Tag: encoding.TagUnsignedInt, Required: true},
		bacstack.PropertyProtocolRevision:       {Tag: encoding.TagUnsignedInt, Required: true},
		bacstack.PropertyMaxApduLengthAccepted:  {Tag: encoding.TagUnsignedInt, Required: true},
		bacstack.PropertySegmentationSupported:  {Tag: encoding.TagEnumerated, Required: true},
		bacstack.PropertyApduTimeout:            {Tag: encoding.TagUnsignedInt, Writable: true},
		bacstack.PropertyNumberOfApduRetries:    {Tag: encoding.TagUnsignedInt, Writable: true},
		bacstack.PropertyDatabaseRevision:       {Tag: encoding.TagUnsignedInt, Required: true},
		bacstack.PropertyBackupAndRestoreState:  {Tag: encoding.TagEnumerated},
		bacstack.PropertyLocalTime:              {Tag: encoding.TagTime},
		bacstack.PropertyLocalDate:              {Tag: encoding.TagDate},
	}))
	add(bacstack.ObjectTypeNotificationClass, map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyObjectIdentifier: {Tag: encoding.TagObjectID, Required: true},
		bacstack.PropertyObjectName:       {Tag: encoding.TagCharacterString, Required: true, Writable: true},
		bacstack.PropertyObjectType:       {Tag: encoding.TagEnumerated, Required: true},
		bacstack.PropertyNotificationClass: {Tag: encoding.TagUnsignedInt, Required: true},
		bacstack.PropertyPriority:         {Tag: encoding.TagUnsignedInt, Array: true, Writable: true},
		bacstack.PropertyAckRequired:      {Tag: encoding.TagBitString, Writable: true},
		bacstack.PropertyRecipientList:    {Tag: encoding.TagEnumerated, Array: true, Writable: true},
	})
	add(bacstack.ObjectTypeCalendar, commonSchema(map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyDateList: {Tag: encoding.TagDate, Array: true, Required: true, Writable: true},
	}))
	add(bacstack.ObjectTypeTrendLog, commonSchema(map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyEnable:        {Tag: encoding.TagBoolean, Writable: true},
		bacstack.PropertyLogInterval:   {Tag: encoding.TagUnsignedInt, Writable: true},
		bacstack.PropertyLogBuffer:     {Tag: encoding.TagOctetString, Array: true},
		bacstack.PropertyBufferSize:    {Tag: encoding.TagUnsignedInt, Writable: true},
		bacstack.PropertyRecordCount:   {Tag: encoding.TagUnsignedInt},
		bacstack.PropertyLoggingType:   {Tag: encoding.TagEnumerated, Writable: true},
	}))
	add(bacstack.ObjectTypeFile, commonSchema(map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertyFileSize:           {Tag: encoding.TagUnsignedInt, Required: true, Writable: true},
		bacstack.PropertyFileAccessMethod:   {Tag: encoding.TagEnumerated, Required: true},
		bacstack.PropertyArchive:            {Tag: encoding.TagBoolean, Writable: true},
		bacstack.PropertyReadOnly:           {Tag: encoding.TagBoolean, Required: true},
	}))
	add(bacstack.ObjectTypeStructuredView, commonSchema(map[bacstack.PropertyIdentifier]PropertySchema{
		bacstack.PropertySubordinateList: {Tag: encoding.TagObjectID, Array: true, Required: true, Writable: true},
	}))

	return schemas
}
