package bulk

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/gvsingest/bundle"
	"github.com/hupe1980/gvsingest/codec"
	"github.com/hupe1980/gvsingest/record"
)

// Item attribute names.
const (
	AttrPartitionKey = "sample_id"
	AttrSortKey      = "id"
	AttrEntries      = "entries"
	AttrEntriesCodec = "entries_codec"
)

// MaxItemSize is the DynamoDB limit for one item, attribute names included.
const MaxItemSize = 400 * 1024

// ErrItemTooLarge is matched by *ItemTooLargeError.
var ErrItemTooLarge = errors.New("bulk: item too large")

// ItemTooLargeError reports a document whose item exceeds MaxItemSize.
type ItemTooLargeError struct {
	ID   string
	Size int
}

func (e *ItemTooLargeError) Error() string {
	return fmt.Sprintf("bulk: item %s is %d bytes, limit is %d", e.ID, e.Size, MaxItemSize)
}

func (e *ItemTooLargeError) Is(target error) bool { return target == ErrItemTooLarge }

// marshalForWrite marshals doc and rejects items the store would refuse.
func marshalForWrite(doc *bundle.Document, c codec.Codec) (map[string]types.AttributeValue, error) {
	item, err := MarshalItem(doc, c)
	if err != nil {
		return nil, err
	}
	if n := ItemSize(item); n > MaxItemSize {
		return nil, &ItemTooLargeError{ID: doc.ID, Size: n}
	}
	return item, nil
}

// ItemSize estimates the stored size of an item the way DynamoDB counts it:
// attribute names plus values, with per-element overhead for lists and
// maps. Numbers are counted by their digits, an upper bound.
func ItemSize(item map[string]types.AttributeValue) int {
	n := 0
	for k, v := range item {
		n += len(k) + attributeSize(v)
	}
	return n
}

func attributeSize(av types.AttributeValue) int {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return len(v.Value)
	case *types.AttributeValueMemberN:
		return len(v.Value) + 1
	case *types.AttributeValueMemberB:
		return len(v.Value)
	case *types.AttributeValueMemberBOOL, *types.AttributeValueMemberNULL:
		return 1
	case *types.AttributeValueMemberL:
		n := 3
		for _, e := range v.Value {
			n += 1 + attributeSize(e)
		}
		return n
	case *types.AttributeValueMemberM:
		n := 3
		for k, e := range v.Value {
			n += 1 + len(k) + attributeSize(e)
		}
		return n
	case *types.AttributeValueMemberSS:
		n := 0
		for _, e := range v.Value {
			n += len(e)
		}
		return n
	case *types.AttributeValueMemberNS:
		n := 0
		for _, e := range v.Value {
			n += len(e) + 1
		}
		return n
	case *types.AttributeValueMemberBS:
		n := 0
		for _, e := range v.Value {
			n += len(e)
		}
		return n
	default:
		return 0
	}
}

// MarshalItem encodes doc as a DynamoDB item. With a codec other than
// none, entries are stored as compressed JSON in a binary attribute and
// the codec name is recorded in AttrEntriesCodec.
func MarshalItem(doc *bundle.Document, c codec.Codec) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, fmt.Errorf("bulk: marshal document %s: %w", doc.ID, err)
	}
	if c == nil || c.Name() == (codec.None{}).Name() {
		return item, nil
	}

	raw, err := json.Marshal(doc.Entries)
	if err != nil {
		return nil, fmt.Errorf("bulk: marshal entries of %s: %w", doc.ID, err)
	}
	packed, err := c.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("bulk: compress entries of %s: %w", doc.ID, err)
	}
	item[AttrEntries] = &types.AttributeValueMemberB{Value: packed}
	item[AttrEntriesCodec] = &types.AttributeValueMemberS{Value: c.Name()}
	return item, nil
}

// UnmarshalItem decodes an item written by MarshalItem.
func UnmarshalItem(item map[string]types.AttributeValue) (*bundle.Document, error) {
	entries, err := DecodeEntries(item)
	if err != nil {
		return nil, err
	}

	rest := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		if k != AttrEntries && k != AttrEntriesCodec {
			rest[k] = v
		}
	}
	var doc bundle.Document
	if err := attributevalue.UnmarshalMap(rest, &doc); err != nil {
		return nil, fmt.Errorf("bulk: unmarshal document: %w", err)
	}
	doc.Entries = entries
	return &doc, nil
}

// DecodeEntries re-inflates the entries attribute of an item.
func DecodeEntries(item map[string]types.AttributeValue) ([]*record.Record, error) {
	name := ""
	if av, ok := item[AttrEntriesCodec].(*types.AttributeValueMemberS); ok {
		name = av.Value
	}

	if name == "" || name == (codec.None{}).Name() {
		var entries []*record.Record
		if err := attributevalue.Unmarshal(item[AttrEntries], &entries); err != nil {
			return nil, fmt.Errorf("bulk: unmarshal entries: %w", err)
		}
		return entries, nil
	}

	c, err := codec.ByName(name)
	if err != nil {
		return nil, err
	}
	av, ok := item[AttrEntries].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("bulk: entries encoded with %s are not binary", name)
	}
	raw, err := c.Decompress(av.Value)
	if err != nil {
		return nil, err
	}
	var entries []*record.Record
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("bulk: unmarshal entries: %w", err)
	}
	return entries, nil
}

// itemKey identifies an item by its primary key attributes.
func itemKey(item map[string]types.AttributeValue) string {
	var pk, sk string
	if v, ok := item[AttrPartitionKey].(*types.AttributeValueMemberN); ok {
		pk = v.Value
	}
	if v, ok := item[AttrSortKey].(*types.AttributeValueMemberS); ok {
		sk = v.Value
	}
	return pk + "/" + sk
}
