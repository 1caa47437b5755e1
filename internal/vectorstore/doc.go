// Package vectorstore stores memory points and serves similarity search.
//
// Two backends implement the Store interface: QdrantStore speaks gRPC to an
// external Qdrant deployment and is the production path; ChromemStore embeds
// chromem-go for local development and tests. Both report cosine similarity
// in [0,1] with higher scores more similar, so reconciliation thresholds
// behave identically across backends.
package vectorstore
