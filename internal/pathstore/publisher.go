package pathstore

import (
	"context"
	"fmt"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// Publisher writes documents under a key prefix:
//
//	<prefix>/documents/<docID>/meta
//	<prefix>/documents/<docID>/chunks/<index>
//
// Each chunk is linked to its document's meta node.
type Publisher struct {
	client *Client
	prefix string
}

func NewPublisher(client *Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "docstruct"
	}
	return &Publisher{client: client, prefix: prefix}
}

func (p *Publisher) DocumentKey(docID string) string {
	return fmt.Sprintf("%s/documents/%s", p.prefix, docID)
}

func (p *Publisher) MetaKey(docID string) string {
	return p.DocumentKey(docID) + "/meta"
}

func (p *Publisher) ChunkKey(docID string, index int) string {
	return fmt.Sprintf("%s/chunks/%05d", p.DocumentKey(docID), index)
}

func (p *Publisher) source(docID string) string { return "docstruct:" + docID }

// PublishMeta writes the document summary node.
func (p *Publisher) PublishMeta(ctx context.Context, docID string, meta map[string]any) error {
	return p.client.PutNode(ctx, p.MetaKey(docID), NodeRequest{
		Value:      meta,
		MemoryType: "metacognitive",
		Salience:   0.5,
		Source:     p.source(docID),
	})
}

// PublishChunk writes one chunk and links it to the document meta node.
func (p *Publisher) PublishChunk(ctx context.Context, docID string, c doctree.Chunk) error {
	key := p.ChunkKey(docID, c.Metadata.ChunkIndex)
	err := p.client.PutNode(ctx, key, NodeRequest{
		Value: map[string]any{
			"text":     c.Text,
			"metadata": c.Metadata,
		},
		MemoryType: "semantic",
		Salience:   0.3,
		Source:     p.source(docID),
	})
	if err != nil {
		return err
	}
	return p.client.PutLink(ctx, LinkRequest{
		From:    key,
		To:      p.MetaKey(docID),
		Weight:  1,
		Summary: c.Metadata.Heading(),
	})
}

// DeleteDocument removes the document subtree. Missing documents are not an
// error.
func (p *Publisher) DeleteDocument(ctx context.Context, docID string) error {
	return p.client.DeleteNode(ctx, p.DocumentKey(docID), true)
}
