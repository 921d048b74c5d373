package lexical

// indexMapping is published once at startup and used for lazy index
// creation when the backend reports IndexNotFound.
const indexMapping = `{
  "mappings": {
    "properties": {
      "doc_id":  { "type": "keyword" },
      "chunk_id": { "type": "keyword" },
      "title":   { "type": "text" },
      "text":    { "type": "text" },
      "url":     { "type": "keyword" },
      "section": { "type": "keyword" },
      "lang":    { "type": "keyword" },
      "tags":    { "type": "keyword" },
      "tokens":  { "type": "integer" }
    }
  }
}`

// IndexName is the single OpenSearch index backing the lexical adapter.
const IndexName = "chunks"
