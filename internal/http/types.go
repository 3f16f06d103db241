package http

import "github.com/fyrsmithlabs/ragstore/internal/vectorstore"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Nodes     int    `json:"nodes"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// AddRequest is the request body for POST /api/v1/nodes.
type AddRequest struct {
	Text  string `json:"text"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AddResponse is the response body for POST /api/v1/nodes.
type AddResponse struct {
	ID uint64 `json:"id"`
}

// QueryRequest is the request body for POST /api/v1/query. Vector takes
// precedence over Text. With Filters set, matching nodes are returned
// unranked.
type QueryRequest struct {
	Text              string               `json:"text,omitempty"`
	Vector            []float32            `json:"vector,omitempty"`
	Filters           []vectorstore.Filter `json:"filters,omitempty"`
	IncludeEmbeddings bool                 `json:"include_embeddings,omitempty"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Text              string `json:"text"`
	IncludeEmbeddings bool   `json:"include_embeddings,omitempty"`
}

// NodeResponse is one node in a response.
type NodeResponse struct {
	ID        uint64             `json:"id"`
	Sentence  string             `json:"sentence"`
	Metadata  vectorstore.Filter `json:"metadata"`
	Embedding []float32          `json:"embedding,omitempty"`
}

// ResultsResponse is the response body for query and search.
type ResultsResponse struct {
	Count int            `json:"count"`
	Nodes []NodeResponse `json:"nodes"`
}

// PersistResponse is the response body for POST /api/v1/persist.
type PersistResponse struct {
	Nodes int `json:"nodes"`
}

func toNodeResponse(n vectorstore.Node, withEmbedding bool) NodeResponse {
	r := NodeResponse{ID: n.TextID, Sentence: n.Sentence, Metadata: n.Metadata}
	if withEmbedding {
		r.Embedding = n.Embedding
	}
	return r
}

func toResultsResponse(nodes []vectorstore.Node, withEmbeddings bool) ResultsResponse {
	out := ResultsResponse{Count: len(nodes), Nodes: make([]NodeResponse, len(nodes))}
	for i, n := range nodes {
		out.Nodes[i] = toNodeResponse(n, withEmbeddings)
	}
	return out
}
