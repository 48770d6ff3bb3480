package pipeline

import (
	"taskrelay/internal/ai"
	"taskrelay/internal/platform"
	"taskrelay/internal/store"
)

// New wires a complete pipeline from concrete collaborators. maxResults
// bounds per-collection context retrieval; taskURLBase renders task links
// in channel replies and may be empty.
func New(client *platform.Client, st *store.Store, engine ai.Client, maxResults int, taskURLBase string) *Orchestrator {
	resolver := NewResolver(client)
	filter := NewFilter(st)
	listener := NewListener(client, st, resolver, filter)
	retriever := NewRetriever(st)
	processor := NewProcessor(retriever, engine, KeywordClassifier{}, st, maxResults)
	dispatcher := NewDispatcher(client, taskURLBase)
	memory := NewMemory(st)
	return NewOrchestrator(listener, processor, dispatcher, memory)
}
