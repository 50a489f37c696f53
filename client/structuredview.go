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

package client

import (
	"context"
	"fmt"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/services"
)

// DefaultMaxWalkDepth bounds StructuredView traversal when the caller does
// not supply one.
const DefaultMaxWalkDepth = 10

// StructuredViewNode is one object in a structured-view hierarchy walk.
type StructuredViewNode struct {
	Object   bacstack.ObjectIdentifier
	Children []StructuredViewNode
}

// WalkStructuredView reads root's subordinate_list and recurses into every
// child that is itself a structured-view object, up to maxDepth levels
// deep. A visited set breaks cycles: a subordinate already seen higher in
// the traversal is recorded as a leaf instead of being re-expanded (spec
// §4.12). maxDepth <= 0 uses DefaultMaxWalkDepth.
func (c *Client) WalkStructuredView(ctx context.Context, dest bacstack.NetworkAddress, root bacstack.ObjectIdentifier, maxDepth int) (StructuredViewNode, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxWalkDepth
	}
	visited := make(map[bacstack.ObjectIdentifier]bool)
	return c.walk(ctx, dest, root, maxDepth, visited)
}

func (c *Client) walk(ctx context.Context, dest bacstack.NetworkAddress, object bacstack.ObjectIdentifier, depthRemaining int, visited map[bacstack.ObjectIdentifier]bool) (StructuredViewNode, error) {
	node := StructuredViewNode{Object: object}
	if visited[object] {
		return node, nil
	}
	visited[object] = true

	if depthRemaining <= 0 || object.Type != bacstack.ObjectTypeStructuredView {
		return node, nil
	}

	subordinates, err := c.readSubordinateList(ctx, dest, object)
	if err != nil {
		return node, fmt.Errorf("client: subordinate-list of %s: %w", object.String(), err)
	}
	for _, sub := range subordinates {
		child, err := c.walk(ctx, dest, sub, depthRemaining-1, visited)
		if err != nil {
			return node, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// readSubordinateList reads subordinate_list the same way GetObjectList
// reads object_list: a SEQUENCE OF object-identifier, decoded directly
// rather than through the single-value ReadProperty-ACK path.
func (c *Client) readSubordinateList(ctx context.Context, dest bacstack.NetworkAddress, view bacstack.ObjectIdentifier) ([]bacstack.ObjectIdentifier, error) {
	payload := services.EncodeReadPropertyRequest(services.ReadPropertyRequest{Object: view, Property: bacstack.PropertySubordinateList})
	resp, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceReadProperty, payload)
	if err != nil {
		return nil, err
	}
	return decodeObjectListAck(resp.Payload)
}
