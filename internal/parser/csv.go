package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// csvBatchSize is the number of data rows rendered under one heading.
const csvBatchSize = 20

// CSVParser renders rows as "column: value" records, batched under
// "Rows a-b" headings so each batch can become a chunk.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := &Document{Title: baseTitle(filename, ".csv")}
	if len(records) == 0 {
		return doc, nil
	}
	doc.Nodes = append(doc.Nodes, doctree.Node{Kind: doctree.Heading, Level: 1, Text: doc.Title})

	columns := records[0]
	rows := records[1:]
	for i := 0; i < len(rows); i += csvBatchSize {
		end := min(i+csvBatchSize, len(rows))

		var lines []string
		for _, row := range rows[i:end] {
			fields := make([]string, 0, len(row))
			for j, cell := range row {
				if j < len(columns) && columns[j] != "" {
					fields = append(fields, columns[j]+": "+cell)
				} else {
					fields = append(fields, cell)
				}
			}
			lines = append(lines, strings.Join(fields, ", "))
		}

		doc.Nodes = append(doc.Nodes,
			// 1-indexed file rows, the header being row 1
			doctree.Node{Kind: doctree.Heading, Level: 2, Text: fmt.Sprintf("Rows %d-%d", i+2, end+1)},
			doctree.Node{Kind: doctree.Paragraph, Text: strings.Join(lines, "\n")},
		)
	}
	return doc, nil
}
