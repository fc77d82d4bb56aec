// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package master

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// memDDB is an in-memory table keyed by chunk_id that honors the
// attribute_not_exists condition.
type memDDB struct {
	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	putErr  error
	puts    int
	lookups int
}

func newMemDDB() *memDDB {
	return &memDDB{items: map[string]map[string]types.AttributeValue{}}
}

func (m *memDDB) PutItem(
	_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return nil, m.putErr
	}
	key := in.Item[attrChunkID].(*types.AttributeValueMemberS).Value
	if aws.ToString(in.ConditionExpression) == "attribute_not_exists(chunk_id)" {
		if _, ok := m.items[key]; ok {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	m.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memDDB) GetItem(
	_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	key := in.Key[attrChunkID].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: m.items[key]}, nil
}

func testConfirmation() base.Confirmation {
	return base.Confirmation{
		ChunkID:  base.NewChunkID(),
		Replicas: []int{0, 2},
		Nodes: []base.NodeDescriptor{
			{Address: "node-0", DataCenter: "dc0"},
			{Address: "node-2", DataCenter: "dc0"},
		},
		Info: base.ChunkInfo{Size: 1 << 20, Checksum: 0xfeedface12345678, BlockCount: 4},
		Meta: base.ChunkMeta{
			RowCount: 1000, BlockCount: 4, UncompressedSize: 2 << 20, CompressedSize: 1 << 20,
			Codec: "zstd", Checksum: "crc32c", MinKey: []byte{0, 1}, MaxKey: []byte{0, 1, 3},
		},
	}
}

func TestConfirmers(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name   string
		make   func() Confirmer
		lookup func(Confirmer, base.ChunkID) (base.Confirmation, bool)
	}{
		{
			name: "mem",
			make: func() Confirmer { return NewMemConfirmer() },
			lookup: func(c Confirmer, id base.ChunkID) (base.Confirmation, bool) {
				return c.(*MemConfirmer).Lookup(id)
			},
		},
		{
			name: "dynamo",
			make: func() Confirmer { return NewDynamoConfirmer(newMemDDB(), "chunks") },
			lookup: func(c Confirmer, id base.ChunkID) (base.Confirmation, bool) {
				conf, ok, err := c.(*DynamoConfirmer).Lookup(ctx, id)
				require.NoError(t, err)
				return conf, ok
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.make()
			conf := testConfirmation()

			_, ok := tc.lookup(c, conf.ChunkID)
			require.False(t, ok)

			require.NoError(t, c.ConfirmChunk(ctx, conf))
			got, ok := tc.lookup(c, conf.ChunkID)
			require.True(t, ok)
			require.Equal(t, conf, got)

			// Retrying the same confirmation is accepted.
			require.NoError(t, c.ConfirmChunk(ctx, conf))

			other := conf
			other.Replicas = []int{1, 2}
			err := c.ConfirmChunk(ctx, other)
			require.True(t, errors.Is(err, ErrAlreadyConfirmed), "%v", err)

			err = c.ConfirmChunk(ctx, base.Confirmation{ChunkID: base.NewChunkID()})
			require.ErrorContains(t, err, "without replicas")
			err = c.ConfirmChunk(ctx, base.Confirmation{Replicas: []int{0}})
			require.ErrorContains(t, err, "without a chunk id")
		})
	}
}

func TestMemConfirmerOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemConfirmer()
	var ids []base.ChunkID
	for i := 0; i < 3; i++ {
		c := testConfirmation()
		ids = append(ids, c.ChunkID)
		require.NoError(t, m.ConfirmChunk(ctx, c))
	}
	confs := m.Confirmations()
	require.Len(t, confs, 3)
	for i := range confs {
		require.Equal(t, ids[i], confs[i].ChunkID)
	}
}

func TestDynamoConfirmerErrors(t *testing.T) {
	ctx := context.Background()
	ddb := newMemDDB()
	d := NewDynamoConfirmer(ddb, "chunks")

	ddb.putErr = errors.New("throttled")
	err := d.ConfirmChunk(ctx, testConfirmation())
	require.ErrorContains(t, err, "throttled")
	require.Equal(t, 0, ddb.lookups)

	ddb.putErr = nil
	conf := testConfirmation()
	require.NoError(t, d.ConfirmChunk(ctx, conf))

	// A damaged item surfaces as a lookup error.
	ddb.items[conf.ChunkID.String()][attrChecksum] = &types.AttributeValueMemberN{Value: "1"}
	_, _, err = d.Lookup(ctx, conf.ChunkID)
	require.ErrorContains(t, err, `attribute "checksum" is missing or not a string`)
}
