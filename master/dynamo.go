// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package master

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
)

// DDBClient is the subset of the DynamoDB API used by DynamoConfirmer.
// *dynamodb.Client implements it.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

var _ DDBClient = (*dynamodb.Client)(nil)

// Item attributes. The table's partition key is chunk_id (S).
const (
	attrChunkID    = "chunk_id"
	attrReplicas   = "replicas"
	attrNodes      = "nodes"
	attrAddress    = "address"
	attrDataCenter = "dc"
	attrSize       = "size"
	attrChecksum   = "checksum"
	attrBlockCount = "block_count"
	attrMeta       = "meta"
)

// DynamoConfirmer records one item per chunk in a DynamoDB table. The item is
// written with a conditional put so that a chunk is confirmed at most once.
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name chunkwire-chunks \
//	  --attribute-definitions AttributeName=chunk_id,AttributeType=S \
//	  --key-schema AttributeName=chunk_id,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DynamoConfirmer struct {
	client DDBClient
	table  string
}

var _ Confirmer = (*DynamoConfirmer)(nil)

// NewDynamoConfirmer returns a confirmer writing into table.
func NewDynamoConfirmer(client DDBClient, table string) *DynamoConfirmer {
	return &DynamoConfirmer{client: client, table: table}
}

// ConfirmChunk implements Confirmer. If the chunk is already recorded, the
// stored item is compared with c.
func (d *DynamoConfirmer) ConfirmChunk(ctx context.Context, c base.Confirmation) error {
	if err := checkConfirmation(c); err != nil {
		return err
	}
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                encodeItem(c),
		ConditionExpression: aws.String("attribute_not_exists(" + attrChunkID + ")"),
	})
	if err == nil {
		return nil
	}
	var condErr *types.ConditionalCheckFailedException
	if !errors.As(err, &condErr) {
		return errors.Wrapf(err, "master: confirming chunk %s", c.ChunkID)
	}
	prev, ok, err := d.Lookup(ctx, c.ChunkID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Newf("master: chunk %s vanished after a failed conditional put", c.ChunkID)
	}
	if sameConfirmation(prev, c) {
		return nil
	}
	return errors.Wrapf(ErrAlreadyConfirmed, "chunk %s", c.ChunkID)
}

// Lookup reads the confirmation recorded for the chunk.
func (d *DynamoConfirmer) Lookup(ctx context.Context, id base.ChunkID) (base.Confirmation, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			attrChunkID: &types.AttributeValueMemberS{Value: id.String()},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return base.Confirmation{}, false, errors.Wrapf(err, "master: looking up chunk %s", id)
	}
	if len(out.Item) == 0 {
		return base.Confirmation{}, false, nil
	}
	c, err := decodeItem(out.Item)
	if err != nil {
		return base.Confirmation{}, false, errors.Wrapf(err, "master: chunk %s", id)
	}
	return c, true, nil
}

func numberAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func encodeItem(c base.Confirmation) map[string]types.AttributeValue {
	replicas := make([]types.AttributeValue, len(c.Replicas))
	for i, r := range c.Replicas {
		replicas[i] = numberAttr(int64(r))
	}
	nodes := make([]types.AttributeValue, len(c.Nodes))
	for i, n := range c.Nodes {
		nodes[i] = &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			attrAddress:    &types.AttributeValueMemberS{Value: n.Address},
			attrDataCenter: &types.AttributeValueMemberS{Value: n.DataCenter},
		}}
	}
	return map[string]types.AttributeValue{
		attrChunkID:    &types.AttributeValueMemberS{Value: c.ChunkID.String()},
		attrReplicas:   &types.AttributeValueMemberL{Value: replicas},
		attrNodes:      &types.AttributeValueMemberL{Value: nodes},
		attrSize:       numberAttr(c.Info.Size),
		attrChecksum:   &types.AttributeValueMemberS{Value: strconv.FormatUint(c.Info.Checksum, 16)},
		attrBlockCount: numberAttr(int64(c.Info.BlockCount)),
		attrMeta:       &types.AttributeValueMemberB{Value: c.Meta.Encode(nil)},
	}
}

func decodeItem(item map[string]types.AttributeValue) (base.Confirmation, error) {
	var c base.Confirmation
	str := func(m map[string]types.AttributeValue, name string) (string, error) {
		v, ok := m[name].(*types.AttributeValueMemberS)
		if !ok {
			return "", errors.Newf("attribute %q is missing or not a string", errors.Safe(name))
		}
		return v.Value, nil
	}
	num := func(v types.AttributeValue, name string) (int64, error) {
		n, ok := v.(*types.AttributeValueMemberN)
		if !ok {
			return 0, errors.Newf("attribute %q is missing or not a number", errors.Safe(name))
		}
		return strconv.ParseInt(n.Value, 10, 64)
	}
	list := func(name string) ([]types.AttributeValue, error) {
		l, ok := item[name].(*types.AttributeValueMemberL)
		if !ok {
			return nil, errors.Newf("attribute %q is missing or not a list", errors.Safe(name))
		}
		return l.Value, nil
	}

	s, err := str(item, attrChunkID)
	if err != nil {
		return c, err
	}
	if c.ChunkID, err = base.ParseChunkID(s); err != nil {
		return c, err
	}
	replicas, err := list(attrReplicas)
	if err != nil {
		return c, err
	}
	for _, v := range replicas {
		r, err := num(v, attrReplicas)
		if err != nil {
			return c, err
		}
		c.Replicas = append(c.Replicas, int(r))
	}
	nodes, err := list(attrNodes)
	if err != nil {
		return c, err
	}
	for _, v := range nodes {
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return c, errors.New("node entry is not a map")
		}
		var n base.NodeDescriptor
		if n.Address, err = str(m.Value, attrAddress); err != nil {
			return c, err
		}
		if n.DataCenter, err = str(m.Value, attrDataCenter); err != nil {
			return c, err
		}
		c.Nodes = append(c.Nodes, n)
	}
	if c.Info.Size, err = num(item[attrSize], attrSize); err != nil {
		return c, err
	}
	blockCount, err := num(item[attrBlockCount], attrBlockCount)
	if err != nil {
		return c, err
	}
	c.Info.BlockCount = int(blockCount)
	if s, err = str(item, attrChecksum); err != nil {
		return c, err
	}
	if c.Info.Checksum, err = strconv.ParseUint(s, 16, 64); err != nil {
		return c, err
	}
	meta, ok := item[attrMeta].(*types.AttributeValueMemberB)
	if !ok {
		return c, errors.Newf("attribute %q is missing or not binary", errors.Safe(attrMeta))
	}
	if c.Meta, err = base.DecodeChunkMeta(meta.Value); err != nil {
		return c, err
	}
	return c, nil
}
